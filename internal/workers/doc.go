/*
Package workers sizes worker pools for containerized deployments.

runtime.NumCPU reports the host's CPUs, while GOMAXPROCS follows the cgroup
CPU limit. A pod limited to 2 cores on a 64-core node should run 2 ffmpeg
encodes at a time, not 64, so every count here starts from GOMAXPROCS.

# Usage

	// One encode per CPU, never more than 4
	n := workers.ForCPU(4)

	// Two uploads per CPU, no cap
	n := workers.ForIO(0)

# Environment Variable Override

Setting PROCESSOR_WORKERS to a positive integer replaces the computed
count. The caller's limit still applies. Invalid or non-positive values are
ignored.
*/
package workers
