package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/SIRP996/cao-du-lieu-sub000/internal/domain"
)

// ClassificationMode selects the classifier used by Classify
type ClassificationMode string

const (
	ModeAI          ClassificationMode = "ai"
	ModeAlgorithmic ClassificationMode = "algorithmic"
)

// RunState is the lifecycle of the session's current pipeline run
type RunState string

const (
	RunIdle    RunState = "idle"
	RunRunning RunState = "running"
	RunDone    RunState = "done"
	RunStopped RunState = "stopped"
	RunError   RunState = "error"
)

// Pipeline stages reported in snapshots
const (
	StageExtraction     = "extraction"
	StageClassification = "classification"
	StageStoreSearch    = "store_search"
)

// LogLevel tags a run log line
type LogLevel string

const (
	LogInfo    LogLevel = "info"
	LogSuccess LogLevel = "success"
	LogWarning LogLevel = "warning"
	LogError   LogLevel = "error"
)

// ErrorCodeMissingAPIKey is reported in snapshots when a run halted for lack of credentials
const ErrorCodeMissingAPIKey = "MISSING_API_KEY"

// LogEntry is one line of the user-visible run log
type LogEntry struct {
	Time    time.Time `json:"time"`
	Level   LogLevel  `json:"level"`
	Message string    `json:"message"`
}

// Progress counts completed units of the current stage
type Progress struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
	Percent   int `json:"percent"`
}

// SessionSnapshot is a consistent, polling-friendly copy of the session's run state
type SessionSnapshot struct {
	State       RunState   `json:"state"`
	Stage       string     `json:"stage,omitempty"`
	Progress    Progress   `json:"progress"`
	StopPending bool       `json:"stopPending"`
	RecordCount int        `json:"recordCount"`
	LastError   string     `json:"lastError,omitempty"`
	ErrorCode   string     `json:"errorCode,omitempty"`
	Log         []LogEntry `json:"log"`

	// Credentials is the number of usable API keys; ActiveCredential is the masked current one
	Credentials      int    `json:"credentials"`
	ActiveCredential string `json:"activeCredential,omitempty"`
}

// Extractor turns one task into pending records
type Extractor interface {
	Extract(ctx context.Context, urlOrMarker, htmlHint string, sourceIndex int) ([]domain.RawProductRecord, error)
}

// BatchClassifier classifies many raw names at once
type BatchClassifier interface {
	ClassifyBatch(ctx context.Context, rawNames []string, stop StopSignal) (map[string]domain.ClassificationResult, error)
	Forget(ctx context.Context, rawNames []string) int
}

// StoreSearcher finds physical stores for a product
type StoreSearcher interface {
	Search(ctx context.Context, product string, regions []string, stop StopSignal) ([]domain.StoreRecord, error)
}

// CredentialStore accepts the user-supplied credential string and reports the active one
type CredentialStore interface {
	SetOverride(raw string) int
	Len() int
	CurrentMasked() string
}

// SessionDeps are the collaborators of a SessionService
type SessionDeps struct {
	State        domain.StateRepository
	Extractor    Extractor
	AIClassifier BatchClassifier
	Matcher      *MatchingService
	Credentials  CredentialStore
	Stores       StoreSearcher
}

// SessionConfig holds configuration for the session service
type SessionConfig struct {
	DefaultMode   ClassificationMode
	MaxLogEntries int
}

// SessionService owns the record list, the source configs and the run state.
// Pipeline runs are exclusive and sequential; every mutation is persisted.
type SessionService struct {
	deps        SessionDeps
	defaultMode ClassificationMode
	maxLog      int

	mu       sync.Mutex
	records  []domain.RawProductRecord
	sources  []domain.SourceConfig
	running  bool
	state    RunState
	stage    string
	progress Progress
	lastErr  string
	errCode  string
	logs     []LogEntry

	stop atomic.Bool
	wg   sync.WaitGroup
	log  zerolog.Logger
}

// NewSessionService creates a session with default sources and no records; call Load to restore state
func NewSessionService(deps SessionDeps, config SessionConfig, log zerolog.Logger) *SessionService {
	mode := config.DefaultMode
	if mode != ModeAlgorithmic {
		mode = ModeAI
	}
	maxLog := config.MaxLogEntries
	if maxLog <= 0 {
		maxLog = 200
	}
	if deps.Matcher == nil {
		deps.Matcher = NewMatchingService(nil, MatchConfig{}, log)
	}

	return &SessionService{
		deps:        deps,
		defaultMode: mode,
		maxLog:      maxLog,
		records:     []domain.RawProductRecord{},
		sources:     domain.DefaultSources(),
		state:       RunIdle,
		logs:        []LogEntry{},
		log:         log.With().Str("component", "session").Logger(),
	}
}

// Load restores records, sources and credentials from the state repository.
// Keys that were never written keep their defaults.
func (s *SessionService) Load(ctx context.Context) error {
	if s.deps.State == nil {
		return nil
	}

	records, err := s.deps.State.LoadRecords(ctx)
	if err != nil && !errors.Is(err, domain.ErrStateNotFound) {
		return fmt.Errorf("failed to load records: %w", err)
	}
	sources, err := s.deps.State.LoadSources(ctx)
	if err != nil && !errors.Is(err, domain.ErrStateNotFound) {
		return fmt.Errorf("failed to load sources: %w", err)
	}
	creds, err := s.deps.State.LoadCredentials(ctx)
	if err != nil && !errors.Is(err, domain.ErrStateNotFound) {
		return fmt.Errorf("failed to load credentials: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if records != nil {
		s.records = records
	}
	if len(sources) > 0 {
		s.sources = sources
	}
	if creds != "" && s.deps.Credentials != nil {
		s.deps.Credentials.SetOverride(creds)
	}

	s.log.Info().Int("records", len(s.records)).Int("sources", len(s.sources)).Msg("session state loaded")
	return nil
}

// beginRun marks the session busy; only one pipeline run may be active
func (s *SessionService) beginRun(stage string, total int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return domain.ErrRunInProgress
	}
	s.running = true
	s.stop.Store(false)
	s.state = RunRunning
	s.stage = stage
	s.progress = Progress{Total: total}
	s.lastErr = ""
	s.errCode = ""
	return nil
}

// endRun records the final state of the run
func (s *SessionService) endRun(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.running = false
	switch {
	case err != nil:
		s.state = RunError
		s.lastErr = err.Error()
		if errors.Is(err, domain.ErrMissingAPIKey) {
			s.errCode = ErrorCodeMissingAPIKey
		}
	case s.stop.Load():
		s.state = RunStopped
	default:
		s.state = RunDone
	}
	s.stop.Store(false)
}

func (s *SessionService) stopRequested() bool {
	return s.stop.Load()
}

// RunExtraction processes tasks one at a time in input order.
//
// A failing task is logged and skipped. Credential exhaustion halts the run and is
// returned. The stop flag is checked before each task.
func (s *SessionService) RunExtraction(ctx context.Context, tasks []domain.ExtractionTask) error {
	if len(tasks) == 0 {
		return fmt.Errorf("%w: no extraction tasks", domain.ErrInvalidRequest)
	}
	if err := s.beginRun(StageExtraction, len(tasks)); err != nil {
		return err
	}
	return s.runExtraction(ctx, tasks)
}

// StartExtraction validates and starts RunExtraction in the background.
// Progress is observed through Snapshot.
func (s *SessionService) StartExtraction(tasks []domain.ExtractionTask) error {
	if len(tasks) == 0 {
		return fmt.Errorf("%w: no extraction tasks", domain.ErrInvalidRequest)
	}
	if err := s.beginRun(StageExtraction, len(tasks)); err != nil {
		return err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runExtraction(context.Background(), tasks)
	}()
	return nil
}

func (s *SessionService) runExtraction(ctx context.Context, tasks []domain.ExtractionTask) (err error) {
	defer func() { s.endRun(err) }()

	s.addLog(LogInfo, "Bắt đầu trích xuất %d tác vụ", len(tasks))

	for i, task := range tasks {
		if s.stopRequested() {
			s.addLog(LogWarning, "Đã dừng theo yêu cầu sau %d/%d tác vụ", i, len(tasks))
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		label := taskLabel(task)
		s.addLog(LogInfo, "[%d/%d] Đang xử lý %s (nguồn %d)", i+1, len(tasks), label, task.SourceIndex)

		if task.SourceIndex < 1 || task.SourceIndex > s.sourceCount() {
			s.addLog(LogError, "[%d/%d] Nguồn %d không tồn tại, bỏ qua", i+1, len(tasks), task.SourceIndex)
			s.advance(i+1, len(tasks))
			continue
		}

		marker := task.URL
		if strings.TrimSpace(marker) == "" {
			marker = label
		}
		records, extractErr := s.deps.Extractor.Extract(ctx, marker, task.HTML, task.SourceIndex)
		switch {
		case errors.Is(extractErr, domain.ErrMissingAPIKey):
			s.addLog(LogError, "Thiếu API key hoặc đã hết hạn mức, dừng xử lý")
			return extractErr
		case errors.Is(extractErr, context.Canceled):
			return extractErr
		case extractErr != nil:
			s.addLog(LogError, "[%d/%d] Lỗi: %v", i+1, len(tasks), extractErr)
		case len(records) == 0:
			s.addLog(LogWarning, "[%d/%d] Không tìm thấy sản phẩm nào", i+1, len(tasks))
		default:
			if err := s.appendRecords(ctx, records); err != nil {
				s.addLog(LogError, "Không lưu được dữ liệu: %v", err)
			}
			s.addLog(LogSuccess, "[%d/%d] Tìm thấy %d sản phẩm", i+1, len(tasks), len(records))
		}

		s.advance(i+1, len(tasks))
	}

	s.addLog(LogSuccess, "Hoàn tất trích xuất")
	return nil
}

func taskLabel(task domain.ExtractionTask) string {
	switch {
	case strings.TrimSpace(task.URL) != "":
		return strings.TrimSpace(task.URL)
	case strings.TrimSpace(task.Title) != "":
		return strings.TrimSpace(task.Title)
	default:
		return "HTML dán thủ công"
	}
}

func (s *SessionService) appendRecords(ctx context.Context, records []domain.RawProductRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, records...)
	return s.persistRecordsLocked(ctx)
}

// Classify classifies records with the chosen mode and marks each one successful.
// Only records not yet classified are processed unless all is set. In AI mode,
// credential exhaustion is returned after every record has still been classified
// by the local matcher.
func (s *SessionService) Classify(ctx context.Context, mode ClassificationMode, all bool) error {
	mode, err := s.resolveMode(mode)
	if err != nil {
		return err
	}
	if err := s.beginRun(StageClassification, 0); err != nil {
		return err
	}
	return s.runClassification(ctx, mode, all)
}

// StartClassification validates and starts Classify in the background
func (s *SessionService) StartClassification(mode ClassificationMode, all bool) error {
	mode, err := s.resolveMode(mode)
	if err != nil {
		return err
	}
	if err := s.beginRun(StageClassification, 0); err != nil {
		return err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runClassification(context.Background(), mode, all)
	}()
	return nil
}

func (s *SessionService) resolveMode(mode ClassificationMode) (ClassificationMode, error) {
	if mode == "" {
		mode = s.defaultMode
	}
	if mode != ModeAI && mode != ModeAlgorithmic {
		return "", fmt.Errorf("%w: unknown classification mode %q", domain.ErrInvalidRequest, mode)
	}
	if mode == ModeAI && s.deps.AIClassifier == nil {
		mode = ModeAlgorithmic
	}
	return mode, nil
}

func (s *SessionService) runClassification(ctx context.Context, mode ClassificationMode, all bool) (err error) {
	defer func() { s.endRun(err) }()

	s.mu.Lock()
	targets := make([]int, 0, len(s.records))
	names := make([]string, 0, len(s.records))
	for i := range s.records {
		if all || !s.records[i].Classified() {
			targets = append(targets, i)
			names = append(names, s.records[i].RawName)
		}
	}
	s.progress = Progress{Total: len(targets)}
	s.mu.Unlock()

	if len(targets) == 0 {
		s.addLog(LogInfo, "Không có sản phẩm cần phân loại")
		return nil
	}
	s.addLog(LogInfo, "Phân loại %d sản phẩm (%s)", len(targets), mode)

	results := make(map[string]domain.ClassificationResult, len(names))
	var classifyErr error
	if mode == ModeAI {
		if all {
			if evicted := s.deps.AIClassifier.Forget(ctx, names); evicted > 0 {
				s.log.Info().Int("evicted", evicted).Msg("cleared cached classifications before reclassifying")
			}
		}
		results, classifyErr = s.deps.AIClassifier.ClassifyBatch(ctx, names, s.stopRequested)
		if errors.Is(classifyErr, domain.ErrMissingAPIKey) {
			s.addLog(LogError, "Thiếu API key hoặc đã hết hạn mức, phần còn lại được phân loại bằng thuật toán")
		} else if classifyErr != nil {
			s.addLog(LogWarning, "Phân loại AI gián đoạn: %v", classifyErr)
		}
	}

	s.mu.Lock()
	for n, idx := range targets {
		rec := &s.records[idx]
		res, ok := results[strings.TrimSpace(rec.RawName)]
		if !ok {
			res = s.deps.Matcher.Classify(rec.RawName)
		}
		rec.ApplyClassification(res)
		s.setProgressLocked(n+1, len(targets))
	}
	persistErr := s.persistRecordsLocked(ctx)
	s.mu.Unlock()

	if persistErr != nil {
		s.addLog(LogError, "Không lưu được dữ liệu: %v", persistErr)
	}
	s.addLog(LogSuccess, "Đã phân loại %d sản phẩm", len(targets))

	if errors.Is(classifyErr, domain.ErrMissingAPIKey) {
		return classifyErr
	}
	return nil
}

// Stop asks the active run to stop at its next task or batch boundary.
// It reports whether a run was active.
func (s *SessionService) Stop() bool {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()

	if !running {
		return false
	}
	s.stop.Store(true)
	s.addLog(LogWarning, "Đã yêu cầu dừng")
	return true
}

// Wait blocks until background runs started by StartExtraction or StartClassification have finished
func (s *SessionService) Wait() {
	s.wg.Wait()
}

// Snapshot returns a copy of the run state and log feed
func (s *SessionService) Snapshot() SessionSnapshot {
	var credentials int
	var active string
	if s.deps.Credentials != nil {
		credentials = s.deps.Credentials.Len()
		active = s.deps.Credentials.CurrentMasked()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	logs := make([]LogEntry, len(s.logs))
	copy(logs, s.logs)

	return SessionSnapshot{
		State:            s.state,
		Stage:            s.stage,
		Progress:         s.progress,
		StopPending:      s.running && s.stop.Load(),
		RecordCount:      len(s.records),
		LastError:        s.lastErr,
		ErrorCode:        s.errCode,
		Log:              logs,
		Credentials:      credentials,
		ActiveCredential: active,
	}
}

// Records returns a copy of the record list
func (s *SessionService) Records() []domain.RawProductRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.RawProductRecord, len(s.records))
	copy(out, s.records)
	return out
}

// Sources returns a copy of the source configs
func (s *SessionService) Sources() []domain.SourceConfig {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.SourceConfig, len(s.sources))
	copy(out, s.sources)
	return out
}

// Report reconciles the current records and returns rows sorted by name or gap
func (s *SessionService) Report(sortBy string) ([]domain.ReportRow, error) {
	if sortBy == "" {
		sortBy = SortByName
	}
	if sortBy != SortByName && sortBy != SortByGap {
		return nil, fmt.Errorf("%w: unknown sort %q", domain.ErrInvalidRequest, sortBy)
	}

	records := s.Records()
	sources := s.Sources()
	return BuildReport(Reconcile(records, sources), sortBy), nil
}

// UpdateSources replaces the source configs. Records keep their source index, so the
// new list must still cover every index that records refer to.
func (s *SessionService) UpdateSources(ctx context.Context, sources []domain.SourceConfig) error {
	if len(sources) == 0 || len(sources) > domain.MaxSources {
		return fmt.Errorf("%w: between 1 and %d sources required", domain.ErrInvalidRequest, domain.MaxSources)
	}

	cleaned := make([]domain.SourceConfig, len(sources))
	for i, src := range sources {
		src.Name = strings.TrimSpace(src.Name)
		if src.Name == "" {
			return fmt.Errorf("%w: source %d has no name", domain.ErrInvalidRequest, i+1)
		}
		if src.VoucherPercent < 0 || src.VoucherPercent > 100 {
			return fmt.Errorf("%w: source %d voucher must be within 0-100", domain.ErrInvalidRequest, i+1)
		}
		if src.MarketplaceType == "" {
			src.MarketplaceType = domain.DetectMarketplace(src.Name)
		}
		if !src.MarketplaceType.Valid() {
			return fmt.Errorf("%w: source %d has unknown marketplace %q", domain.ErrInvalidRequest, i+1, src.MarketplaceType)
		}
		cleaned[i] = src
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range s.records {
		if rec.SourceIndex > len(cleaned) {
			return fmt.Errorf("%w: records still refer to source %d", domain.ErrSourceOutOfRange, rec.SourceIndex)
		}
	}

	s.sources = cleaned
	if s.deps.State != nil {
		if err := s.deps.State.SaveSources(ctx, cleaned); err != nil {
			return fmt.Errorf("failed to save sources: %w", err)
		}
	}
	s.log.Info().Int("sources", len(cleaned)).Msg("sources updated")
	return nil
}

// SetCredentials stores the user-supplied credential string and returns how many credentials were accepted
func (s *SessionService) SetCredentials(ctx context.Context, raw string) (int, error) {
	if s.deps.Credentials == nil {
		return 0, fmt.Errorf("%w: credentials are not configurable", domain.ErrInvalidRequest)
	}
	accepted := s.deps.Credentials.SetOverride(raw)

	if s.deps.State != nil {
		if err := s.deps.State.SaveCredentials(ctx, raw); err != nil {
			return accepted, fmt.Errorf("failed to save credentials: %w", err)
		}
	}

	s.mu.Lock()
	if s.errCode == ErrorCodeMissingAPIKey && accepted > 0 {
		s.errCode = ""
	}
	s.mu.Unlock()

	return accepted, nil
}

// ClearRecords deletes every record
func (s *SessionService) ClearRecords(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return domain.ErrRunInProgress
	}
	s.records = []domain.RawProductRecord{}
	s.progress = Progress{}
	if err := s.persistRecordsLocked(ctx); err != nil {
		return err
	}
	s.log.Info().Msg("records cleared")
	return nil
}

// SearchStores looks up physical stores for product across regions as an exclusive run
func (s *SessionService) SearchStores(ctx context.Context, product string, regions []string) (stores []domain.StoreRecord, err error) {
	if s.deps.Stores == nil {
		return nil, fmt.Errorf("%w: store search is not configured", domain.ErrInvalidRequest)
	}
	if strings.TrimSpace(product) == "" || len(regions) == 0 {
		return nil, fmt.Errorf("%w: product and at least one region are required", domain.ErrInvalidRequest)
	}
	if err := s.beginRun(StageStoreSearch, len(regions)); err != nil {
		return nil, err
	}
	defer func() { s.endRun(err) }()

	s.addLog(LogInfo, "Tìm cửa hàng bán %q tại %d khu vực", product, len(regions))
	stores, err = s.deps.Stores.Search(ctx, product, regions, s.stopRequested)
	s.mu.Lock()
	s.setProgressLocked(len(regions), len(regions))
	s.mu.Unlock()

	if err != nil {
		s.addLog(LogError, "Tìm cửa hàng thất bại: %v", err)
		return stores, err
	}
	s.addLog(LogSuccess, "Tìm thấy %d cửa hàng", len(stores))
	return stores, nil
}

func (s *SessionService) sourceCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sources)
}

func (s *SessionService) advance(completed, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setProgressLocked(completed, total)
}

func (s *SessionService) setProgressLocked(completed, total int) {
	percent := 100
	if total > 0 {
		percent = completed * 100 / total
	}
	s.progress = Progress{Completed: completed, Total: total, Percent: percent}
}

func (s *SessionService) persistRecordsLocked(ctx context.Context) error {
	if s.deps.State == nil {
		return nil
	}
	if err := s.deps.State.SaveRecords(ctx, s.records); err != nil {
		s.log.Error().Err(err).Msg("failed to persist records")
		return err
	}
	return nil
}

// addLog appends a run log line, dropping the oldest beyond maxLog, and mirrors it to zerolog
func (s *SessionService) addLog(level LogLevel, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)

	s.mu.Lock()
	s.logs = append(s.logs, LogEntry{Time: time.Now(), Level: level, Message: msg})
	if len(s.logs) > s.maxLog {
		s.logs = append([]LogEntry(nil), s.logs[len(s.logs)-s.maxLog:]...)
	}
	s.mu.Unlock()

	event := s.log.Info()
	switch level {
	case LogWarning:
		event = s.log.Warn()
	case LogError:
		event = s.log.Error()
	}
	event.Msg(msg)
}
