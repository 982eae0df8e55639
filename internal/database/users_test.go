package database

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestCreateUser(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	user, err := db.CreateUser(ctx, "  Alice ", "alice@example.com", "password123")
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	if user.Username != "alice" {
		t.Errorf("Username = %q, want lower-cased alice", user.Username)
	}
	if user.PasswordHash == "password123" || user.PasswordHash == "" {
		t.Error("password must be stored hashed")
	}
	if user.IsGuest {
		t.Error("registered user should not be a guest")
	}
}

func TestCreateUserConflictIsCaseInsensitive(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	mustCreateUser(t, db, "alice")

	_, err := db.CreateUser(ctx, "ALICE", "", "password123")
	if !errors.Is(err, ErrUsernameTaken) {
		t.Errorf("CreateUser() error = %v, want ErrUsernameTaken", err)
	}
}

func TestCreateUserValidatesPassword(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		password string
	}{
		{"too short", "12345"},
		{"too long", strings.Repeat("x", MaxPasswordLength+1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := db.CreateUser(ctx, "user", "", tt.password); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestAuthenticateUser(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	mustCreateUser(t, db, "alice")

	tests := []struct {
		name     string
		username string
		password string
		wantErr  error
	}{
		{"valid credentials", "alice", "password123", nil},
		{"case-insensitive username", "Alice", "password123", nil},
		{"wrong password", "alice", "wrong-password", ErrInvalidCredentials},
		{"unknown user", "bob", "password123", ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, err := db.AuthenticateUser(ctx, tt.username, tt.password)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("AuthenticateUser() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr == nil && user.Username != "alice" {
				t.Errorf("Username = %q", user.Username)
			}
		})
	}
}

func TestGuestCannotAuthenticate(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	guest, err := db.CreateGuestUser(ctx, "")
	if err != nil {
		t.Fatalf("CreateGuestUser() error = %v", err)
	}
	if !strings.HasPrefix(guest.Username, "guest_") || len(guest.Username) != len("guest_")+10 {
		t.Errorf("generated guest username = %q", guest.Username)
	}
	if !guest.IsGuest {
		t.Error("IsGuest should be true")
	}

	if _, err := db.AuthenticateUser(ctx, guest.Username, ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("AuthenticateUser(guest) error = %v, want ErrInvalidCredentials", err)
	}
}

func TestSanitizeDisplayName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Jane Doe", "jane_doe"},
		{"  Émile Zola ", "mile_zola"},
		{"o'brien", "obrien"},
		{"!!!", "user"},
		{"", "user"},
		{"j..r. r..tolkien", "j.r._r.tolkien"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := SanitizeDisplayName(tt.in)
			if got != tt.want {
				t.Errorf("SanitizeDisplayName(%q) = %q, want %q", tt.in, got, tt.want)
			}
			if err := ValidateUsername(got); err != nil {
				t.Errorf("ValidateUsername(%q) error = %v", got, err)
			}
		})
	}
}

func TestSanitizeDisplayNameTruncates(t *testing.T) {
	got := SanitizeDisplayName(strings.Repeat("a", 200))
	if len(got) > MaxUsernameLength-8 {
		t.Errorf("len = %d, want at most %d", len(got), MaxUsernameLength-8)
	}
	if err := ValidateUsername(got + "_99"); err != nil {
		t.Errorf("suffixed name rejected: %v", err)
	}
}

func TestValidateUsername(t *testing.T) {
	tests := []struct {
		name     string
		username string
		wantErr  bool
	}{
		{"simple", "alice", false},
		{"punctuation", "a.b_c-d", false},
		{"max length", strings.Repeat("x", MaxUsernameLength), false},
		{"empty", "", true},
		{"space", "john doe", true},
		{"slash", "a/b", true},
		{"double dot", "x..y", true},
		{"dot dot only", "..", true},
		{"upper case", "Alice", true},
		{"too long", strings.Repeat("x", MaxUsernameLength+1), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUsername(tt.username)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateUsername(%q) error = %v, wantErr %v", tt.username, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidUsername) {
				t.Errorf("error %v does not wrap ErrInvalidUsername", err)
			}
		})
	}
}

func TestCreateRejectsInvalidUsernames(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	for _, name := range []string{"john doe", "a/b", "x..y"} {
		if _, err := db.CreateUser(ctx, name, "", "password123"); !errors.Is(err, ErrInvalidUsername) {
			t.Errorf("CreateUser(%q) error = %v, want ErrInvalidUsername", name, err)
		}
		if _, err := db.CreateGuestUser(ctx, name); !errors.Is(err, ErrInvalidUsername) {
			t.Errorf("CreateGuestUser(%q) error = %v, want ErrInvalidUsername", name, err)
		}
	}

	mustCreateUser(t, db, "alice")
	for _, name := range []string{"john doe", "a/b", "x..y", ""} {
		if _, err := db.RenameUser(ctx, "alice", name); !errors.Is(err, ErrInvalidUsername) {
			t.Errorf("RenameUser(%q) error = %v, want ErrInvalidUsername", name, err)
		}
	}
	if _, err := db.GetUserByUsername(ctx, "alice"); err != nil {
		t.Errorf("alice should be unchanged: %v", err)
	}
}

func TestCreateOAuthUserSuffixesCollisions(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	want := []string{"jane_doe", "jane_doe_2", "jane_doe_3"}
	for i, expected := range want {
		user, err := db.CreateOAuthUser(ctx, "Jane Doe", "jane"+expected+"@example.com")
		if err != nil {
			t.Fatalf("CreateOAuthUser() #%d error = %v", i, err)
		}
		if user.Username != expected {
			t.Errorf("CreateOAuthUser() #%d username = %q, want %q", i, user.Username, expected)
		}
	}
}

func TestGetUserByEmail(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	mustCreateUser(t, db, "alice")

	user, err := db.GetUserByEmail(ctx, "ALICE@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail() error = %v", err)
	}
	if user.Username != "alice" {
		t.Errorf("Username = %q, want alice", user.Username)
	}

	if _, err := db.GetUserByEmail(ctx, ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetUserByEmail(\"\") error = %v, want ErrNotFound", err)
	}
}

func TestSetPasswordInvalidatesSessions(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	user := mustCreateUser(t, db, "alice")
	session, err := db.CreateSession(ctx, user.ID, time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	if err := db.SetPassword(ctx, user.ID, "new-password"); err != nil {
		t.Fatalf("SetPassword() error = %v", err)
	}

	if _, err := db.ValidateSession(ctx, session.Token); !errors.Is(err, ErrInvalidSession) {
		t.Errorf("session should be invalidated, got err = %v", err)
	}
	if _, err := db.AuthenticateUser(ctx, "alice", "new-password"); err != nil {
		t.Errorf("new password rejected: %v", err)
	}
	if _, err := db.AuthenticateUser(ctx, "alice", "password123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("old password still accepted, err = %v", err)
	}
}

func TestRenameUserCascadesToVideos(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	mustCreateUser(t, db, "alice")
	mustCreateUser(t, db, "bob")
	video, err := db.CreateVideo(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := db.RenameUser(ctx, "alice", "bob"); !errors.Is(err, ErrUsernameTaken) {
		t.Errorf("RenameUser() to taken name error = %v, want ErrUsernameTaken", err)
	}
	if _, err := db.RenameUser(ctx, "nobody", "carol"); !errors.Is(err, ErrNotFound) {
		t.Errorf("RenameUser() unknown user error = %v, want ErrNotFound", err)
	}

	renamed, err := db.RenameUser(ctx, "alice", "Alicia")
	if err != nil {
		t.Fatalf("RenameUser() error = %v", err)
	}
	if renamed.Username != "alicia" {
		t.Errorf("Username = %q, want alicia", renamed.Username)
	}

	got, err := db.GetVideo(ctx, video.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Username != "alicia" {
		t.Errorf("video owner = %q, want alicia", got.Username)
	}
}

func TestSoftDeleteUser(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	user := mustCreateUser(t, db, "alice")
	session, _ := db.CreateSession(ctx, user.ID, time.Hour)

	if err := db.SoftDeleteUser(ctx, user.ID); err != nil {
		t.Fatalf("SoftDeleteUser() error = %v", err)
	}

	if _, err := db.GetUserByUsername(ctx, "alice"); !errors.Is(err, ErrNotFound) {
		t.Errorf("deleted user still visible, err = %v", err)
	}
	if _, err := db.ValidateSession(ctx, session.Token); !errors.Is(err, ErrInvalidSession) {
		t.Errorf("session of deleted user still valid, err = %v", err)
	}
	if exists, _ := db.UsernameExists(ctx, "alice"); !exists {
		t.Error("deleted usernames stay reserved")
	}
	if err := db.SoftDeleteUser(ctx, user.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second SoftDeleteUser() error = %v, want ErrNotFound", err)
	}
}

func TestPurgeUserCascades(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	mustCreateUser(t, db, "alice")
	video, _ := db.CreateVideo(ctx, "alice")

	removed, err := db.PurgeUser(ctx, "alice")
	if err != nil {
		t.Fatalf("PurgeUser() error = %v", err)
	}
	if len(removed) != 1 || removed[0].ID != video.ID {
		t.Errorf("PurgeUser() returned %v, want the one video", removed)
	}

	if _, err := db.GetVideo(ctx, video.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("video should be removed by cascade, err = %v", err)
	}
	if exists, _ := db.UsernameExists(ctx, "alice"); exists {
		t.Error("purged username should be free")
	}
	if _, err := db.PurgeUser(ctx, "alice"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second PurgeUser() error = %v, want ErrNotFound", err)
	}
}
