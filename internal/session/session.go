// Package session is the caller-facing façade over one attempt: a small
// state machine that validates operations against the session's view and
// the attempt's status before delegating to the navigator, and that runs
// auto-grading on exit for package formats that cannot grade themselves.
package session

import (
	"context"
	"io"
	"log/slog"

	"github.com/roach88/sequent/internal/model"
	"github.com/roach88/sequent/internal/nav"
	"github.com/roach88/sequent/internal/tree"
)

// View selects the session policy: Execute runs the full sequencing
// rules and persists, Review walks delivered content without persisting,
// RandomAccess walks the raw tree and persists data model changes only.
type View int

const (
	Execute View = iota
	Review
	RandomAccess
)

var viewNames = map[View]string{
	Execute:      "execute",
	Review:       "review",
	RandomAccess: "randomAccess",
}

func (v View) String() string {
	if name, ok := viewNames[v]; ok {
		return name
	}
	return "unknown"
}

func (v View) mode() nav.Mode {
	switch v {
	case Review:
		return nav.ModeReview
	case RandomAccess:
		return nav.ModeRandomAccess
	default:
		return nav.ModeExecute
	}
}

// Status is the session state, mirroring the attempt status with an
// extra Uninitialized state before the first activity is identified.
type Status int

const (
	Uninitialized Status = iota
	Active
	Suspended
	Completed
	Abandoned
)

var statusNames = map[Status]string{
	Uninitialized: "uninitialized",
	Active:        "active",
	Suspended:     "suspended",
	Completed:     "completed",
	Abandoned:     "abandoned",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "unknown"
}

// Session wraps one navigator over one attempt. Not safe for concurrent
// use; one session per attempt per goroutine.
type Session struct {
	view   View
	nav    *nav.Navigator
	logger *slog.Logger
}

// Option configures a Session.
type Option func(*config)

type config struct {
	logger  *slog.Logger
	navOpts []nav.Option
}

// WithLogger routes session and navigator logging to l.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		c.logger = l
		c.navOpts = append(c.navOpts, nav.WithLogger(l))
	}
}

// WithClock fixes the navigator's clock.
func WithClock(cl nav.Clock) Option {
	return func(c *config) { c.navOpts = append(c.navOpts, nav.WithClock(cl)) }
}

// WithRandomSource fixes the navigator's randomization source.
func WithRandomSource(src tree.Source) Option {
	return func(c *config) { c.navOpts = append(c.navOpts, nav.WithRandomSource(src)) }
}

// New creates a session over the attempt behind p. The tree is loaded
// lazily on the first operation; call Begin to load it eagerly.
func New(view View, p nav.Persister, opts ...Option) *Session {
	cfg := config{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Session{
		view:   view,
		nav:    nav.New(view.mode(), p, cfg.navOpts...),
		logger: cfg.logger,
	}
}

// View returns the session's view.
func (s *Session) View() View { return s.view }

// Navigator exposes the underlying navigator for callers that need
// table-of-contents or validity queries beyond the session surface.
func (s *Session) Navigator() *nav.Navigator { return s.nav }

// Begin loads the attempt's activity tree. Idempotent.
func (s *Session) Begin(ctx context.Context) error {
	return s.nav.LoadActivityTree(ctx)
}

// Status reports the session state. Uninitialized until the tree is
// loaded and a current activity exists.
func (s *Session) Status() Status {
	at := s.nav.Attempt()
	if at == nil {
		return Uninitialized
	}
	switch at.Status {
	case model.AttemptSuspended:
		return Suspended
	case model.AttemptCompleted:
		return Completed
	case model.AttemptAbandoned:
		return Abandoned
	}
	if s.nav.CurrentActivity() == nil {
		return Uninitialized
	}
	return Active
}

// Attempt returns the attempt snapshot, nil before Begin.
func (s *Session) Attempt() *model.Attempt { return s.nav.Attempt() }

// CurrentActivityKey returns the current activity's manifest key, ""
// when no activity is current.
func (s *Session) CurrentActivityKey() string {
	if cur := s.nav.CurrentActivity(); cur != nil {
		return cur.Key
	}
	return ""
}

// CurrentActivityResourceType reports what kind of content to render
// for the current activity.
func (s *Session) CurrentActivityResourceType() model.ResourceType {
	if cur := s.nav.CurrentActivity(); cur != nil {
		return cur.ResourceType
	}
	return model.ResourceNone
}

// CurrentActivityResourceKey is the entry point of the current
// activity's content, "" for structural activities.
func (s *Session) CurrentActivityResourceKey() string {
	if cur := s.nav.CurrentActivity(); cur != nil {
		return cur.ResourceKey
	}
	return ""
}

// CurrentActivityDataModel exposes the current activity's runtime data
// model for the rendering layer. Nil when no activity is current.
func (s *Session) CurrentActivityDataModel() *model.DataModel {
	if cur := s.nav.CurrentActivity(); cur != nil {
		return &cur.DataModel
	}
	return nil
}

// Start identifies and delivers the attempt's first activity. Execute
// view only; fails if the attempt already has a current activity or is
// not active. When the sequenced start is refused and
// ensureInitialActivity is set, leaves are tried left-to-right as a
// choice fallback; if that also fails the package is unusable and an
// InvalidPackageError is returned.
func (s *Session) Start(ctx context.Context, ensureInitialActivity bool) error {
	if s.view != Execute {
		return invalidOp("start", "not available in "+s.view.String()+" view")
	}
	if err := s.Begin(ctx); err != nil {
		return err
	}
	at := s.nav.Attempt()
	if at.Status != model.AttemptActive {
		return invalidOp("start", "attempt is "+string(at.Status))
	}
	if s.nav.CurrentActivity() != nil || at.CurrentActivityID != 0 {
		return invalidOp("start", "attempt already started")
	}

	err := s.nav.Navigate(ctx, model.Start)
	if err == nil {
		return nil
	}
	if !nav.IsSequencingError(err) || !ensureInitialActivity {
		return err
	}
	s.logger.Info("sequenced start refused, trying choice fallback",
		"attempt", at.ID, "code", nav.SequencingCode(err))
	if err := s.nav.Navigate(ctx, model.ChoiceStart); err != nil {
		return &InvalidPackageError{AttemptID: at.ID, Err: err}
	}
	return nil
}

// MoveToNext advances to the next activity. In the Execute view the
// attempt must be active with a current activity; sequencing refusals
// propagate as SequencingError.
func (s *Session) MoveToNext(ctx context.Context) error {
	if err := s.requireNavigable(ctx, "move to next"); err != nil {
		return err
	}
	return s.nav.Navigate(ctx, model.Continue)
}

// MoveToPrevious moves to the previous activity.
func (s *Session) MoveToPrevious(ctx context.Context) error {
	if err := s.requireNavigable(ctx, "move to previous"); err != nil {
		return err
	}
	return s.nav.Navigate(ctx, model.Previous)
}

// MoveToActivity navigates to the activity with the given key.
func (s *Session) MoveToActivity(ctx context.Context, key string) error {
	if err := s.requireNavigable(ctx, "move to activity"); err != nil {
		return err
	}
	return s.nav.NavigateTo(ctx, key)
}

// requireNavigable enforces the Execute view preconditions for movement.
// Review and RandomAccess delegate directly; their navigators enforce
// their own policies.
func (s *Session) requireNavigable(ctx context.Context, op string) error {
	if err := s.Begin(ctx); err != nil {
		return err
	}
	if s.view != Execute {
		return nil
	}
	if s.nav.Attempt().Status != model.AttemptActive {
		return invalidOp(op, "attempt is "+string(s.nav.Attempt().Status))
	}
	if s.nav.CurrentActivity() == nil {
		return invalidOp(op, "no current activity")
	}
	return nil
}

// IsSuspendValid reports whether Suspend would be accepted.
func (s *Session) IsSuspendValid(ctx context.Context) (bool, error) {
	if s.view != Execute {
		return false, nil
	}
	if err := s.Begin(ctx); err != nil {
		return false, err
	}
	return s.nav.Attempt().Status == model.AttemptActive && s.nav.CurrentActivity() != nil, nil
}

// Suspend suspends the whole sequencing session for a later Resume.
func (s *Session) Suspend(ctx context.Context) error {
	ok, err := s.IsSuspendValid(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return invalidOp("suspend", "attempt is not active in the execute view with a current activity")
	}
	return s.nav.Navigate(ctx, model.SuspendAll)
}

// IsResumeValid reports whether Resume would be accepted.
func (s *Session) IsResumeValid(ctx context.Context) (bool, error) {
	if s.view != Execute {
		return false, nil
	}
	if err := s.Begin(ctx); err != nil {
		return false, err
	}
	return s.nav.Attempt().Status == model.AttemptSuspended, nil
}

// Resume resumes a suspended session at the suspended activity.
func (s *Session) Resume(ctx context.Context) error {
	ok, err := s.IsResumeValid(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return invalidOp("resume", "attempt is not suspended")
	}
	return s.nav.Navigate(ctx, model.ResumeAll)
}

// IsExitValid reports whether Exit would be accepted.
func (s *Session) IsExitValid(ctx context.Context) (bool, error) {
	return s.IsSuspendValid(ctx)
}

// Exit ends the attempt, rolling up final status, then auto-grades when
// the package format requires it.
func (s *Session) Exit(ctx context.Context) error {
	ok, err := s.IsExitValid(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return invalidOp("exit", "attempt is not active in the execute view with a current activity")
	}
	if err := s.nav.Navigate(ctx, model.ExitAll); err != nil {
		return err
	}
	return s.autoGrade(ctx)
}

// IsAbandonValid reports whether Abandon would be accepted.
func (s *Session) IsAbandonValid(ctx context.Context) (bool, error) {
	return s.IsSuspendValid(ctx)
}

// Abandon ends the attempt without final rollup.
func (s *Session) Abandon(ctx context.Context) error {
	ok, err := s.IsAbandonValid(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return invalidOp("abandon", "attempt is not active in the execute view with a current activity")
	}
	if err := s.nav.Navigate(ctx, model.AbandonAll); err != nil {
		return err
	}
	return s.autoGrade(ctx)
}

// autoGrade walks every deliverable activity of the ended attempt so
// its content can be scored post hoc. Only packages in the v1.2 format
// need this; v1.3 content grades itself during the attempt. Auto-grading
// mode is always exited, error or not.
func (s *Session) autoGrade(ctx context.Context) (err error) {
	if s.nav.Attempt().PackageFormat != model.FormatV1p2 {
		return nil
	}
	if err := s.nav.BeginAutoGradingMode(ctx); err != nil {
		if nav.IsSequencingError(err) {
			// Nothing deliverable to grade.
			return nil
		}
		return err
	}
	defer func() {
		if endErr := s.nav.EndAutoGradingMode(); err == nil {
			err = endErr
		}
	}()
	for {
		if err := s.nav.Navigate(ctx, model.Continue); err != nil {
			if nav.IsSequencingError(err) {
				return nil
			}
			return err
		}
	}
}

// ProcessDataModelNavigation executes a navigation request posted by
// content through the data model. Returns false when there was nothing
// to process.
func (s *Session) ProcessDataModelNavigation(ctx context.Context) (bool, error) {
	return s.nav.ProcessDataModelNavigation(ctx)
}

// CommitChanges persists accumulated navigation and data model changes.
// The Review view never persists.
func (s *Session) CommitChanges(ctx context.Context) error {
	if s.view == Review {
		return invalidOp("commit changes", "review view never persists")
	}
	return s.nav.Save(ctx)
}

// ShowNext reports whether a "next" control should be offered.
func (s *Session) ShowNext(ctx context.Context) (bool, error) {
	if err := s.Begin(ctx); err != nil {
		return false, err
	}
	if s.view == Execute && s.nav.Attempt().Status != model.AttemptActive {
		return false, nil
	}
	return s.nav.IsNavigationValid(ctx, model.Continue)
}

// ShowPrevious reports whether a "previous" control should be offered.
func (s *Session) ShowPrevious(ctx context.Context) (bool, error) {
	if err := s.Begin(ctx); err != nil {
		return false, err
	}
	if s.view == Execute && s.nav.Attempt().Status != model.AttemptActive {
		return false, nil
	}
	return s.nav.IsNavigationValid(ctx, model.Previous)
}

// ShowExit reports whether an "exit" control should be offered.
func (s *Session) ShowExit(ctx context.Context) (bool, error) {
	return s.IsExitValid(ctx)
}

// ShowAbandon reports whether an "abandon" control should be offered.
func (s *Session) ShowAbandon(ctx context.Context) (bool, error) {
	return s.IsAbandonValid(ctx)
}

// ShowSave reports whether a "save for later" control should be
// offered. Saving suspends the session, so it follows suspend validity.
func (s *Session) ShowSave(ctx context.Context) (bool, error) {
	return s.IsSuspendValid(ctx)
}

// TableOfContents builds the attempt's table of contents. Choice
// validity is evaluated against the sequencing rules only in the
// Execute view.
func (s *Session) TableOfContents(ctx context.Context) (*nav.TableOfContentsElement, error) {
	return s.nav.LoadTableOfContents(ctx, s.view == Execute)
}
