package pollreconciler

import (
	"log/slog"
	"time"

	httpadapter "rollcall/contexts/group-scheduling/poll-reconciler/adapters/http"
	"rollcall/contexts/group-scheduling/poll-reconciler/adapters/memory"
	"rollcall/contexts/group-scheduling/poll-reconciler/application/commands"
	"rollcall/contexts/group-scheduling/poll-reconciler/application/queries"
	"rollcall/contexts/group-scheduling/poll-reconciler/domain/entities"
	"rollcall/contexts/group-scheduling/poll-reconciler/ports"
)

type Module struct {
	Handler httpadapter.Handler
	Ingest  commands.IngestUseCase
	Store   *memory.Store
}

type Dependencies struct {
	Polls               ports.PollRepository
	Attendance          ports.AttendanceStore
	Outbox              ports.OutboxWriter
	IDGen               ports.IDGenerator
	RetentionWindow     time.Duration
	CannotAttendPhrases []string
	WriteAttempts       int
	WriteBackoff        time.Duration
	Logger              *slog.Logger
}

func NewModule(deps Dependencies) Module {
	ingestUseCase := commands.IngestUseCase{
		Polls: deps.Polls,
		Projector: commands.AttendanceProjector{
			Store:  deps.Attendance,
			Logger: deps.Logger,
		},
		Outbox:              deps.Outbox,
		IDGen:               deps.IDGen,
		RetentionWindow:     deps.RetentionWindow,
		CannotAttendPhrases: deps.CannotAttendPhrases,
		WriteAttempts:       deps.WriteAttempts,
		WriteBackoff:        deps.WriteBackoff,
		Logger:              deps.Logger,
	}
	resultsUseCase := queries.PollResultsUseCase{
		Polls: deps.Polls,
	}
	historyUseCase := queries.VoterHistoryUseCase{
		Polls: deps.Polls,
	}
	return Module{
		Handler: httpadapter.Handler{
			Ingest:  ingestUseCase,
			Results: resultsUseCase,
			History: historyUseCase,
			Logger:  deps.Logger,
		},
		Ingest: ingestUseCase,
	}
}

func NewInMemoryModule(seed []entities.Poll, logger *slog.Logger) Module {
	store := memory.NewStore(seed)
	module := NewModule(Dependencies{
		Polls:           store,
		Attendance:      store,
		Outbox:          store,
		IDGen:           store,
		RetentionWindow: 7 * 24 * time.Hour,
		Logger:          logger,
	})
	module.Store = store
	return module
}
