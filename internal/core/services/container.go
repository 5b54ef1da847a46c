package services

import (
	"time"

	portsrepo "github.com/northfin/recon_backend/internal/core/ports/repositories"
	portssvc "github.com/northfin/recon_backend/internal/core/ports/services"
	"github.com/northfin/recon_backend/internal/matching"
	"github.com/northfin/recon_backend/internal/utils/teamcache"
)

// Container holds all the services and manages their dependencies
type Container struct {
	Matching    portssvc.MatchingSvcFacade
	Batch       portssvc.BatchSvcFacade
	Escalation  portssvc.EscalationSvcFacade
	Collections portssvc.CollectionsSvcFacade
	Session     portssvc.SessionSvcFacade
	Dispatcher  *NotificationDispatcher
}

// NewContainer creates a new service container with properly initialized dependencies
func NewContainer(repos *portsrepo.RepositoryProvider, cfg matching.Config, sender portssvc.NotificationSender, dispatcherOpts ...DispatcherOption) *Container {
	container := &Container{}

	// Stage definitions are read on every escalation and written from the
	// configuration surface; both sides share one cache.
	stageCache := teamcache.New(5 * time.Minute)

	container.Matching = NewMatchingService(repos, cfg)
	container.Batch = NewBatchService(container.Matching)
	container.Escalation = NewEscalationService(repos, WithStageCache(stageCache))
	container.Collections = NewCollectionsService(repos, WithCollectionsCache(stageCache))
	container.Session = NewSessionService(repos)
	container.Dispatcher = NewNotificationDispatcher(repos.Outbox, sender, dispatcherOpts...)

	return container
}

// Helper to check interface implementations at compile time
var (
	_ portssvc.MatchingSvcFacade    = (*matchingService)(nil)
	_ portssvc.BatchSvcFacade       = (*batchService)(nil)
	_ portssvc.EscalationSvcFacade  = (*escalationService)(nil)
	_ portssvc.CollectionsSvcFacade = (*collectionsService)(nil)
	_ portssvc.SessionSvcFacade     = (*sessionService)(nil)
)
