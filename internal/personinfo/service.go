package personinfo

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ayusman/facegift/internal/logging"
	"github.com/ayusman/facegift/internal/tasks"
)

// JobKind is the task kind pollers run under.
const JobKind = "lookup"

// InfoStore receives every polled answer. The face tracker implements it.
type InfoStore interface {
	StorePersonInfo(id string, info any) error
}

// Config sets the polling cadence.
type Config struct {
	PollInterval time.Duration
	MaxPollTime  time.Duration
}

// DefaultConfig returns the polling defaults.
func DefaultConfig() Config {
	return Config{PollInterval: 3 * time.Second, MaxPollTime: 120 * time.Second}
}

type pollRequest struct {
	PersonID  string `json:"person_id"`
	ImageFile string `json:"image_file"`
}

// Service caches lookups and polls each unfinished one as a background
// job keyed "lookup:<person id>".
type Service struct {
	config Config
	lookup Lookup
	store  InfoStore
	runner tasks.Runner
	log    *zap.SugaredLogger

	mu      sync.Mutex
	cache   map[string]Info
	polling map[string]bool
	manual  map[string]bool
}

// NewService registers the poll handler on runner. store may be nil.
func NewService(config Config, lookup Lookup, store InfoStore, runner tasks.Runner, log *zap.SugaredLogger) *Service {
	def := DefaultConfig()
	if config.PollInterval <= 0 {
		config.PollInterval = def.PollInterval
	}
	if config.MaxPollTime <= 0 {
		config.MaxPollTime = def.MaxPollTime
	}

	s := &Service{
		config:  config,
		lookup:  lookup,
		store:   store,
		runner:  runner,
		log:     logging.OrNop(log),
		cache:   make(map[string]Info),
		polling: make(map[string]bool),
		manual:  make(map[string]bool),
	}
	runner.Register(JobKind, s.handle)
	return s
}

// JobKey is the task key of personID's poller.
func JobKey(personID string) string {
	return JobKind + ":" + personID
}

// Get returns the cached info for personID. On a miss it caches a
// scraping placeholder and starts polling; without an image file there is
// nothing to look up and Get reports false.
func (s *Service) Get(personID, imageFile string) (Info, bool) {
	s.mu.Lock()
	info, ok := s.cache[personID]
	if !ok {
		if imageFile == "" {
			s.mu.Unlock()
			s.log.Warnf("no image file for %s, skipping lookup", personID)
			return Info{}, false
		}
		info = Scraping(personID)
		s.cache[personID] = info
	}
	s.mu.Unlock()

	if info.Status == StatusScraping && imageFile != "" {
		s.startPolling(personID, imageFile)
	}
	return info, true
}

// Cached returns the cached info without starting a lookup.
func (s *Service) Cached(personID string) (Info, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.cache[personID]
	return info, ok
}

func (s *Service) startPolling(personID, imageFile string) {
	s.mu.Lock()
	if s.polling[personID] {
		s.mu.Unlock()
		return
	}
	s.polling[personID] = true
	s.mu.Unlock()

	job, err := tasks.NewJob(JobKind, JobKey(personID), pollRequest{PersonID: personID, ImageFile: imageFile})
	if err == nil {
		job.Timeout = s.config.MaxPollTime + s.config.PollInterval
		err = s.runner.Submit(job)
	}
	if errors.Is(err, tasks.ErrDuplicate) {
		return
	}
	if err != nil {
		s.log.Warnf("start polling for %s: %v", personID, err)
		s.mu.Lock()
		delete(s.polling, personID)
		s.mu.Unlock()
	}
}

func (s *Service) handle(ctx context.Context, job tasks.Job) error {
	var req pollRequest
	if err := job.Decode(&req); err != nil {
		return err
	}
	defer func() {
		s.mu.Lock()
		delete(s.polling, req.PersonID)
		s.mu.Unlock()
	}()
	return s.poll(ctx, req.PersonID, req.ImageFile)
}

// poll fetches immediately, then every interval until the lookup is done,
// the time budget runs out, or ctx is cancelled.
func (s *Service) poll(ctx context.Context, personID, imageFile string) error {
	start := time.Now()
	s.log.Debugf("polling %s every %s for up to %s", personID, s.config.PollInterval, s.config.MaxPollTime)

	for attempt := 1; ; attempt++ {
		info, err := s.lookup.Fetch(ctx, personID, imageFile)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.log.Warnf("lookup %s: %v", personID, err)
			info = Info{PersonID: personID, Status: StatusError, Summary: "Error"}
		}
		if !s.update(info) {
			s.log.Infof("person info for %s was set by hand, stopping lookup", personID)
			return nil
		}

		if info.Done() {
			s.log.Infof("person info for %s %s after %d polls: %s", personID, info.Status, attempt, info.FullName)
			return nil
		}
		if time.Since(start)+s.config.PollInterval > s.config.MaxPollTime {
			s.log.Infof("polling for %s timed out after %d attempts", personID, attempt)
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.config.PollInterval):
		}
	}
}

// update caches a polled answer. It reports false when the person's info
// was set by hand, which polled answers never replace.
func (s *Service) update(info Info) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.manual[info.PersonID] {
		return false
	}
	s.cache[info.PersonID] = info

	if s.store != nil {
		if err := s.store.StorePersonInfo(info.PersonID, info); err != nil {
			s.log.Warnf("store person info for %s: %v", info.PersonID, err)
		}
	}
	return true
}

// Set records info entered by hand and stops any lookup for the person.
// The store is written first; on error nothing is cached.
func (s *Service) Set(info Info) error {
	s.mu.Lock()
	if s.store != nil {
		if err := s.store.StorePersonInfo(info.PersonID, info); err != nil {
			s.mu.Unlock()
			return err
		}
	}
	s.cache[info.PersonID] = info
	s.manual[info.PersonID] = true
	polling := s.polling[info.PersonID]
	s.mu.Unlock()

	if polling {
		s.Stop(info.PersonID)
	}
	return nil
}

// Polling returns the ids with a poller running, sorted.
func (s *Service) Polling() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.polling))
	for id := range s.polling {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Stop cancels the poller for personID.
func (s *Service) Stop(personID string) bool {
	return s.runner.Cancel(JobKey(personID))
}

// StopAll cancels every poller.
func (s *Service) StopAll() {
	for _, id := range s.Polling() {
		s.Stop(id)
	}
}

// ClearCache stops all pollers and forgets every answer.
func (s *Service) ClearCache() {
	s.StopAll()
	s.mu.Lock()
	s.cache = make(map[string]Info)
	s.manual = make(map[string]bool)
	s.mu.Unlock()
	s.log.Info("person info cache cleared")
}
