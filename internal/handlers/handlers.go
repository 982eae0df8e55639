package handlers

import (
	"time"

	"github.com/gorilla/mux"

	"helpmeout/internal/database"
	"helpmeout/internal/mailer"
	"helpmeout/internal/oauth"
	"helpmeout/internal/processor"
	"helpmeout/internal/recording"
	"helpmeout/internal/startup"
)

// Submitter queues a finished recording for background processing.
type Submitter interface {
	Submit(job processor.Job) error
}

// Handlers holds the dependencies shared by all endpoints.
type Handlers struct {
	db        *database.Database
	store     *recording.ChunkStore
	processor Submitter
	mailer    *mailer.Mailer
	sso       *oauth.Manager
	config    *startup.Config
	router    *mux.Router
	startTime time.Time
}

// New creates the handler set. mail and sso may be nil.
func New(db *database.Database, store *recording.ChunkStore, proc Submitter, mail *mailer.Mailer, sso *oauth.Manager, config *startup.Config) *Handlers {
	return &Handlers{
		db:        db,
		store:     store,
		processor: proc,
		mailer:    mail,
		sso:       sso,
		config:    config,
		startTime: time.Now(),
	}
}
