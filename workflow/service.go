package workflow

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flowforge/agentcore/checkpointer"
	"github.com/flowforge/agentcore/graph"
	"github.com/flowforge/agentcore/graph/emit"
)

// defaultMaxSteps and defaultNodeTimeout bound one Run/Resume so a
// malformed plan cannot loop forever. The executor<->router loop is the
// only cycle in this graph, so MaxSteps is sized to tolerate a long
// plan, not an open-ended workflow.
const (
	defaultMaxSteps    = 200
	defaultNodeTimeout = 2 * time.Minute
)

// Service mediates between an HTTP surface and the graph runtime: it
// assembles per-request dependencies (a credential-scoped Tool
// Registry, the shared LLM Gateway), drives a fresh graph.Engine for
// every call, and (for ChatStream) translates engine/node events into
// the SSE protocol. Service holds no HTTP-specific knowledge; httpapi
// maps its errors to status codes.
type Service struct {
	checkpoints   checkpointer.Checkpointer[GraphState]
	gateway       Gateway
	modelID       string
	buildRegistry func(credentials map[string]string) Registry
	metadata      MetadataStore
	metrics       *graph.PrometheusMetrics
	baseEmitter   emit.Emitter

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	registryMu    sync.Mutex
	registryCache map[string]Registry

	resumeMu sync.Mutex
	resumes  map[string]resumeRecord

	tunables Tunables
}

// Tunables bounds one Run/Resume call. Zero values fall back to the
// package defaults.
type Tunables struct {
	MaxSteps           int
	DefaultNodeTimeout time.Duration
	RunWallClockBudget time.Duration
}

// SetTunables overrides the engine bounds. Call before serving
// requests; it is not synchronized against in-flight calls.
func (s *Service) SetTunables(t Tunables) {
	s.tunables = t
}

// resumeRecord lets /chat/resume be replayed idempotently: a second call
// with the same action against a thread already advanced past the
// approval it targeted returns the same result instead of a 409, while a
// call against a thread that was never awaiting approval still fails.
type resumeRecord struct {
	resultCheckpointID string
	action             ResumeAction
	plan               Plan
	isComplete         bool
}

// NewService wires a Service.
//
// buildRegistry constructs a per-request Registry from the caller's bag
// of per-integration bearer tokens (toolregistry.Build adapted to the
// Registry interface declared in gateway.go). metadataStore defaults to
// an in-memory store; baseEmitter defaults to emit.NewNullEmitter() and
// receives every node-lifecycle event for logging/tracing independent of
// any one request's SSE stream.
func NewService(
	checkpoints checkpointer.Checkpointer[GraphState],
	gw Gateway,
	modelID string,
	buildRegistry func(credentials map[string]string) Registry,
	metadataStore MetadataStore,
	metrics *graph.PrometheusMetrics,
	baseEmitter emit.Emitter,
) *Service {
	if metadataStore == nil {
		metadataStore = NewInMemoryMetadataStore()
	}
	if baseEmitter == nil {
		baseEmitter = emit.NewNullEmitter()
	}
	return &Service{
		checkpoints:   checkpoints,
		gateway:       gw,
		modelID:       modelID,
		buildRegistry: buildRegistry,
		metadata:      metadataStore,
		metrics:       metrics,
		baseEmitter:   baseEmitter,
		locks:         make(map[string]*sync.Mutex),
		registryCache: make(map[string]Registry),
		resumes:       make(map[string]resumeRecord),
	}
}

// threadLock returns the per-thread advisory mutex keeping at most one
// transition in flight per thread, creating it on first use. Locks are
// never removed; a long-lived deployment's lock map grows with the
// number of distinct threads it has ever served, which is the same
// tradeoff the in-memory checkpointer already makes.
func (s *Service) threadLock(threadID string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[threadID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[threadID] = l
	}
	return l
}

func (s *Service) cacheRegistry(threadID string, reg Registry) {
	s.registryMu.Lock()
	defer s.registryMu.Unlock()
	s.registryCache[threadID] = reg
}

// registryForThread returns the Registry built for threadID's last
// fresh/streamed request. Resume and Retry reuse it rather than asking
// the caller to resupply bearer tokens; a token swap mid-workflow would
// orphan gateway handles keyed by the old credentials. A cache miss
// (e.g. after a process restart) falls back to an
// empty registry: every step with a tool hint then has no authorized
// tool, which surfaces as an ExecutionError rather than a silent hang.
func (s *Service) registryForThread(threadID string) Registry {
	s.registryMu.Lock()
	reg, ok := s.registryCache[threadID]
	s.registryMu.Unlock()
	if ok {
		return reg
	}
	return s.buildRegistry(nil)
}

// buildEngine assembles a fresh graph.Engine wired with the four nodes
// and this Service's checkpointer. A new Engine per call is
// required because the emitter, and so the destination of this call's
// SSE frames, is bound at construction (graph.New), not passed to
// Run/Resume.
func (s *Service) buildEngine(emitter emit.Emitter) *graph.Engine[GraphState] {
	maxSteps := defaultMaxSteps
	if s.tunables.MaxSteps > 0 {
		maxSteps = s.tunables.MaxSteps
	}
	nodeTimeout := defaultNodeTimeout
	if s.tunables.DefaultNodeTimeout > 0 {
		nodeTimeout = s.tunables.DefaultNodeTimeout
	}
	options := []interface{}{
		graph.WithMaxSteps(maxSteps),
		graph.WithDefaultNodeTimeout(nodeTimeout),
		graph.WithMetrics(s.metrics),
	}
	if s.tunables.RunWallClockBudget > 0 {
		options = append(options, graph.WithRunWallClockBudget(s.tunables.RunWallClockBudget))
	}
	eng := graph.New[GraphState](Merge, s.checkpoints, emitter, options...)
	_ = eng.Add("planner", NewPlannerNode(emitter))
	_ = eng.Add("router", NewRouterNode())
	_ = eng.Add("executor", NewExecutorNode(emitter))
	_ = eng.Add("synthesizer", NewSynthesizerNode(emitter))
	_ = eng.StartAt("planner")
	return eng
}

// runFrom starts a fresh transition: Engine.Run when the thread has no
// prior checkpoint (parent == ""), Engine.Resume otherwise, including
// the common case of a brand-new top-level request on an existing
// thread, which still must chain its first checkpoint onto the thread's
// prior history.
func (s *Service) runFrom(ctx context.Context, engine *graph.Engine[GraphState], threadID, node, parent string, state GraphState) (GraphState, error) {
	if parent == "" {
		return engine.Run(ctx, threadID, state)
	}
	return engine.Resume(ctx, threadID, node, parent, state)
}

func (s *Service) withRunContext(ctx context.Context, registry Registry) context.Context {
	ctx = withGateway(ctx, s.gateway)
	ctx = withRegistry(ctx, registry)
	tracker := graph.NewCostTracker(uuid.NewString(), "USD")
	return withCostTracker(ctx, tracker, s.modelID)
}

// ChatRequest is the input to Chat and ChatStream.
// ThreadID is empty to start a new thread.
// Credentials is the per-integration bearer-token bag the Registry is
// built from; it is never persisted.
type ChatRequest struct {
	Request     string
	ThreadID    string
	Credentials map[string]string
}

// ChatResponse is Chat's synchronous result.
type ChatResponse struct {
	ThreadID   string
	Plan       *Plan
	IsComplete bool
}

// Chat runs one request to completion (planner through synthesizer, or
// to a suspension) without streaming, returning the final plan state.
func (s *Service) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	threadID, isNew := s.resolveThreadID(req.ThreadID)
	if req.Request == "" {
		return ChatResponse{}, &InputError{Reason: "request is required"}
	}

	lock := s.threadLock(threadID)
	lock.Lock()
	defer lock.Unlock()

	registry := s.buildRegistry(req.Credentials)
	s.cacheRegistry(threadID, registry)

	state, parent, err := s.loadForFreshRequest(ctx, threadID, req.Request, registry)
	if err != nil {
		return ChatResponse{}, err
	}

	if isNew {
		_ = s.metadata.CreateIfAbsent(ctx, ConversationMetadata{ThreadID: threadID, Title: titleFromRequest(req.Request)})
	}

	ctx = s.withRunContext(ctx, registry)
	engine := s.buildEngine(s.baseEmitter)
	final, runErr := s.runFrom(ctx, engine, threadID, "planner", parent, state)
	if runErr != nil {
		return ChatResponse{ThreadID: threadID}, runErr
	}
	return ChatResponse{ThreadID: threadID, Plan: final.Plan, IsComplete: final.IsComplete}, nil
}

// ChatStream is ChatRequest run with live progress: it writes one SSE
// frame per `data: <json>\n\n` to w as
// the graph advances, and blocks until the stream closes (done or
// error). w should implement http.Flusher for the frames to reach the
// client incrementally rather than buffered until the handler returns.
func (s *Service) ChatStream(ctx context.Context, req ChatRequest, w io.Writer) error {
	threadID, isNew := s.resolveThreadID(req.ThreadID)
	if req.Request == "" {
		err := &InputError{Reason: "request is required"}
		WriteFrame(w, Frame{Type: FrameError, Message: err.Error()})
		return err
	}

	lock := s.threadLock(threadID)
	lock.Lock()
	defer lock.Unlock()

	registry := s.buildRegistry(req.Credentials)
	s.cacheRegistry(threadID, registry)

	state, parent, err := s.loadForFreshRequest(ctx, threadID, req.Request, registry)
	if err != nil {
		WriteFrame(w, Frame{Type: FrameError, Message: err.Error()})
		return err
	}

	bridge := newSSEBridge(w, s.checkpoints, s.metadata, registry.Snapshot(), isNew, req.Request)

	ctx = s.withRunContext(ctx, registry)
	engine := s.buildEngine(bridge)
	final, runErr := s.runFrom(ctx, engine, threadID, "planner", parent, state)
	return bridge.finish(final, runErr)
}

// resolveThreadID mints a fresh thread id when threadID is empty.
func (s *Service) resolveThreadID(threadID string) (id string, isNew bool) {
	if threadID == "" {
		return uuid.NewString(), true
	}
	return threadID, false
}

// loadForFreshRequest builds the initial GraphState for a new top-level
// request: for a brand-new thread, a single user message; for an
// existing thread, its latest checkpoint with history preserved but plan
// and step/interrupt state reset so the planner starts over.
func (s *Service) loadForFreshRequest(ctx context.Context, threadID, request string, registry Registry) (GraphState, string, error) {
	rec, err := s.checkpoints.GetLatest(ctx, threadID)
	if errors.Is(err, checkpointer.ErrNotFound) {
		return GraphState{
			ThreadID: threadID,
			Messages: []Message{{Role: RoleUser, Content: request}},
			Registry: registry.Snapshot(),
		}, "", nil
	}
	if err != nil {
		return GraphState{}, "", &CheckpointerError{ThreadID: threadID, Cause: err}
	}

	state := rec.State
	if state.AwaitingApproval {
		return GraphState{}, "", &StateMismatchError{ThreadID: threadID, Reason: "thread is awaiting approval; resume or retry it before sending a new request"}
	}
	state.Messages = append(append([]Message{}, state.Messages...), Message{Role: RoleUser, Content: request})
	state.Plan = nil
	state.CurrentStep = 0
	state.AwaitingApproval = false
	state.IsComplete = false
	state.PendingInterrupt = nil
	state.PendingEdit = nil
	state.LastError = ""
	state.Registry = registry.Snapshot()
	return state, rec.CheckpointID, nil
}

// ResumeRequest is /chat/resume's input. Content only matters for
// Action == ResumeEdit, where it becomes GraphState.PendingEdit.
type ResumeRequest struct {
	ThreadID string
	Action   ResumeAction
	Content  map[string]interface{}
}

// Resume applies a human decision to a thread suspended by a mandatory
// approval step and re-enters the graph.
// A thread not currently awaiting approval returns
// *StateMismatchError (409) unless req matches the decision that already
// resolved it, in which case the cached result is replayed.
func (s *Service) Resume(ctx context.Context, req ResumeRequest) (ChatResponse, error) {
	if req.ThreadID == "" {
		return ChatResponse{}, &InputError{Reason: "thread_id is required"}
	}
	switch req.Action {
	case ResumeApprove, ResumeEdit, ResumeSkip:
	default:
		return ChatResponse{}, &InputError{Reason: "action must be approve, edit, or skip"}
	}

	lock := s.threadLock(req.ThreadID)
	lock.Lock()
	defer lock.Unlock()

	rec, err := s.checkpoints.GetLatest(ctx, req.ThreadID)
	if errors.Is(err, checkpointer.ErrNotFound) {
		return ChatResponse{}, &StateMismatchError{ThreadID: req.ThreadID, Reason: "thread has no checkpoints"}
	}
	if err != nil {
		return ChatResponse{}, &CheckpointerError{ThreadID: req.ThreadID, Cause: err}
	}

	state := rec.State
	if !state.AwaitingApproval || state.PendingInterrupt == nil {
		if cached, ok := s.resumeCached(req.ThreadID, rec.CheckpointID, req.Action); ok {
			plan := cached.plan
			return ChatResponse{ThreadID: req.ThreadID, Plan: &plan, IsComplete: cached.isComplete}, nil
		}
		return ChatResponse{}, &StateMismatchError{ThreadID: req.ThreadID, Reason: "thread is not awaiting approval"}
	}

	idx := state.PendingInterrupt.StepNumber - 1
	if state.Plan == nil || idx < 0 || idx >= len(state.Plan.Steps) {
		return ChatResponse{}, &StateMismatchError{ThreadID: req.ThreadID, Reason: "awaiting-approval step is out of range"}
	}

	plan := clonePlan(state.Plan)
	state.PendingInterrupt = nil
	state.AwaitingApproval = false

	var entryNode string
	switch req.Action {
	case ResumeApprove:
		plan.Steps[idx].Status = StepInProgress
		entryNode = "executor"
	case ResumeEdit:
		plan.Steps[idx].Status = StepInProgress
		state.PendingEdit = req.Content
		entryNode = "executor"
	case ResumeSkip:
		plan.Steps[idx].Status = StepSkipped
		state.CurrentStep = idx + 1
		entryNode = "router"
	}
	state.Plan = plan

	registry := s.registryForThread(req.ThreadID)
	ctx = s.withRunContext(ctx, registry)
	engine := s.buildEngine(s.baseEmitter)

	final, runErr := engine.Resume(ctx, req.ThreadID, entryNode, rec.CheckpointID, state)
	if runErr != nil {
		return ChatResponse{ThreadID: req.ThreadID}, runErr
	}

	resultCheckpointID := rec.CheckpointID
	if latest, lerr := s.checkpoints.GetLatest(ctx, req.ThreadID); lerr == nil {
		resultCheckpointID = latest.CheckpointID
	}
	var planCopy Plan
	if final.Plan != nil {
		planCopy = *final.Plan
	}
	s.cacheResume(req.ThreadID, resultCheckpointID, req.Action, planCopy, final.IsComplete)

	return ChatResponse{ThreadID: req.ThreadID, Plan: final.Plan, IsComplete: final.IsComplete}, nil
}

func (s *Service) cacheResume(threadID, resultCheckpointID string, action ResumeAction, plan Plan, isComplete bool) {
	s.resumeMu.Lock()
	defer s.resumeMu.Unlock()
	s.resumes[threadID] = resumeRecord{resultCheckpointID: resultCheckpointID, action: action, plan: plan, isComplete: isComplete}
}

func (s *Service) resumeCached(threadID, currentCheckpointID string, action ResumeAction) (resumeRecord, bool) {
	s.resumeMu.Lock()
	defer s.resumeMu.Unlock()
	rec, ok := s.resumes[threadID]
	if !ok || rec.resultCheckpointID != currentCheckpointID || rec.action != action {
		return resumeRecord{}, false
	}
	return rec, true
}

// RetryRequest is /chat/retry's input: re-run a failed step and every
// step after it.
type RetryRequest struct {
	ThreadID   string
	StepNumber int
}

// Retry resets stepNumber and every later step to pending and re-enters
// the graph at the router. It does not re-plan and does not refresh
// caller credentials.
func (s *Service) Retry(ctx context.Context, req RetryRequest) (ChatResponse, error) {
	if req.ThreadID == "" {
		return ChatResponse{}, &InputError{Reason: "thread_id is required"}
	}
	if req.StepNumber < 1 {
		return ChatResponse{}, &InputError{Reason: "step_number must be >= 1"}
	}

	lock := s.threadLock(req.ThreadID)
	lock.Lock()
	defer lock.Unlock()

	rec, err := s.checkpoints.GetLatest(ctx, req.ThreadID)
	if errors.Is(err, checkpointer.ErrNotFound) {
		return ChatResponse{}, &StateMismatchError{ThreadID: req.ThreadID, Reason: "thread has no checkpoints"}
	}
	if err != nil {
		return ChatResponse{}, &CheckpointerError{ThreadID: req.ThreadID, Cause: err}
	}

	state := rec.State
	if state.Plan == nil || req.StepNumber > len(state.Plan.Steps) {
		return ChatResponse{}, &InputError{Reason: "step_number is out of range for this thread's plan"}
	}
	if state.AwaitingApproval {
		return ChatResponse{}, &StateMismatchError{ThreadID: req.ThreadID, Reason: "thread is awaiting approval; resume it instead of retrying"}
	}

	plan := clonePlan(state.Plan)
	for i := req.StepNumber - 1; i < len(plan.Steps); i++ {
		plan.Steps[i].Status = StepPending
		plan.Steps[i].Error = ""
		plan.Steps[i].Result = ""
		plan.Steps[i].ToolOutputs = nil
	}
	state.Plan = plan
	state.CurrentStep = req.StepNumber - 1
	state.AwaitingApproval = false
	state.PendingInterrupt = nil
	state.PendingEdit = nil
	state.LastError = ""

	registry := s.registryForThread(req.ThreadID)
	ctx = s.withRunContext(ctx, registry)
	engine := s.buildEngine(s.baseEmitter)

	final, runErr := engine.Resume(ctx, req.ThreadID, "router", rec.CheckpointID, state)
	if runErr != nil {
		return ChatResponse{ThreadID: req.ThreadID}, runErr
	}
	return ChatResponse{ThreadID: req.ThreadID, Plan: final.Plan, IsComplete: final.IsComplete}, nil
}

// HistoryResponse is /chat/history/{thread_id}'s result: the thread's
// latest checkpointed state, not the full checkpoint chain.
type HistoryResponse struct {
	ThreadID           string
	Messages           []Message
	Plan               *Plan
	CurrentStepIndex   int
	LoadedIntegrations []IntegrationInfo
	IsComplete         bool
	AwaitingApproval   bool
}

// History returns the latest checkpointed state for threadID. An
// unknown thread is a 404, not a 400: the thread id is well-formed, it
// simply names nothing yet.
func (s *Service) History(ctx context.Context, threadID string) (HistoryResponse, error) {
	if threadID == "" {
		return HistoryResponse{}, &InputError{Reason: "thread_id is required"}
	}
	rec, err := s.checkpoints.GetLatest(ctx, threadID)
	if errors.Is(err, checkpointer.ErrNotFound) {
		return HistoryResponse{}, &NotFoundError{Reason: "unknown thread: " + threadID}
	}
	if err != nil {
		return HistoryResponse{}, &CheckpointerError{ThreadID: threadID, Cause: err}
	}
	state := rec.State
	return HistoryResponse{
		ThreadID:           threadID,
		Messages:           state.Messages,
		Plan:               state.Plan,
		CurrentStepIndex:   state.CurrentStep,
		LoadedIntegrations: state.Registry.Integrations,
		IsComplete:         state.IsComplete,
		AwaitingApproval:   state.AwaitingApproval,
	}, nil
}
