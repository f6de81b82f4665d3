package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantarch/helmsman/internal/database"
	"github.com/quantarch/helmsman/internal/domain"
	"github.com/quantarch/helmsman/internal/modules/marketdata"
	"github.com/quantarch/helmsman/internal/modules/ops"
	"github.com/quantarch/helmsman/internal/modules/replay"
	"github.com/quantarch/helmsman/internal/orchestrator"
	"github.com/quantarch/helmsman/internal/reliability"
)

// AutoTickJob runs the pipeline on its interval while the gate permits and
// the FX market is open.
type AutoTickJob struct {
	orch *orchestrator.Orchestrator
	ops  *ops.Manager
	log  zerolog.Logger
}

// NewAutoTickJob creates the auto-tick job.
func NewAutoTickJob(orch *orchestrator.Orchestrator, opsMgr *ops.Manager, log zerolog.Logger) *AutoTickJob {
	return &AutoTickJob{orch: orch, ops: opsMgr, log: log.With().Str("job", "auto_tick").Logger()}
}

func (j *AutoTickJob) Name() string { return "auto_tick" }

func (j *AutoTickJob) Run() error {
	state := j.ops.Snapshot()
	if state.Gate == domain.GateG0 {
		j.log.Debug().Msg("Skipping auto tick, gate is G0")
		return nil
	}
	if !state.MockMode && marketdata.IsFXWeekend(time.Now().UTC()) {
		j.log.Debug().Msg("Skipping auto tick, market closed")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	_, err := j.orch.Tick(ctx)
	if errors.Is(err, orchestrator.ErrTickInProgress) {
		j.log.Warn().Msg("Skipping auto tick, previous tick still running")
		return nil
	}
	return err
}

// ReplayRollupJob recomputes the replay record for the previous UTC day.
type ReplayRollupJob struct {
	replay *replay.Service
	log    zerolog.Logger
}

// NewReplayRollupJob creates the nightly rollup job.
func NewReplayRollupJob(svc *replay.Service, log zerolog.Logger) *ReplayRollupJob {
	return &ReplayRollupJob{replay: svc, log: log.With().Str("job", "replay_rollup").Logger()}
}

func (j *ReplayRollupJob) Name() string { return "replay_rollup" }

func (j *ReplayRollupJob) Run() error {
	date := time.Now().UTC().AddDate(0, 0, -1).Format("2006-01-02")
	_, err := j.replay.Rollup(date)
	return err
}

// WALCheckpointJob truncates the WAL of every database on a schedule.
type WALCheckpointJob struct {
	databases map[string]*database.DB
	log       zerolog.Logger
}

// NewWALCheckpointJob creates the checkpoint job.
func NewWALCheckpointJob(databases map[string]*database.DB, log zerolog.Logger) *WALCheckpointJob {
	return &WALCheckpointJob{databases: databases, log: log.With().Str("job", "wal_checkpoint").Logger()}
}

func (j *WALCheckpointJob) Name() string { return "wal_checkpoint" }

func (j *WALCheckpointJob) Run() error {
	for name, db := range j.databases {
		if err := db.WALCheckpoint("TRUNCATE"); err != nil {
			j.log.Error().Err(err).Str("database", name).Msg("WAL checkpoint failed")
			return err
		}
	}
	return nil
}

// BackupJob uploads the nightly ledger snapshot.
type BackupJob struct {
	backup *reliability.BackupService
	log    zerolog.Logger
}

// NewBackupJob creates the backup job.
func NewBackupJob(backup *reliability.BackupService, log zerolog.Logger) *BackupJob {
	return &BackupJob{backup: backup, log: log.With().Str("job", "ledger_backup").Logger()}
}

func (j *BackupJob) Name() string { return "ledger_backup" }

func (j *BackupJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	return j.backup.CreateAndUpload(ctx)
}
