// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package engine runs the staged query pipeline over ingested
// repositories: prepare an index, retrieve context for the question,
// assemble the prompt, stream the provider's answer, and record the
// finished turn in session memory. Deep research requests walk the same
// stages with iteration-aware system prompts; multi-repository requests
// fan out to one pipeline per repository and merge the streams.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/kadirpekel/repochat/pkg/config"
	"github.com/kadirpekel/repochat/pkg/databases"
	"github.com/kadirpekel/repochat/pkg/embedders"
	"github.com/kadirpekel/repochat/pkg/llms"
	"github.com/kadirpekel/repochat/pkg/memory"
	"github.com/kadirpekel/repochat/pkg/rag"
	"github.com/kadirpekel/repochat/pkg/repo"
	"github.com/kadirpekel/repochat/pkg/tokens"
	"github.com/kadirpekel/repochat/pkg/vector"
)

// StageObserver is notified after each pipeline stage completes.
type StageObserver func(stage string, elapsed time.Duration)

// handleKey identifies a warm index handle: one session's view of one
// repository.
type handleKey struct {
	session string
	repoID  string
}

// Engine owns the query pipeline and the resources shared across
// requests: the provider cache, per-session conversations, and warm
// index handles that let follow-up questions skip ingestion.
type Engine struct {
	cfg        *config.Config
	acquirer   *repo.Acquirer
	embedder   embedders.Embedder
	store      *vector.Store
	db         databases.DatabaseProvider
	ingestor   *rag.Ingestor
	providers  *llms.ProviderRegistry
	sessions   *memory.SessionService
	observer   StageObserver
	ingestOpts []rag.IngestorOption

	mu      sync.Mutex
	handles map[handleKey]retriever
}

// Option customizes engine construction. Tests swap in fakes; the server
// wires observers.
type Option func(*Engine)

func WithAcquirer(a *repo.Acquirer) Option {
	return func(e *Engine) { e.acquirer = a }
}

func WithEmbedder(emb embedders.Embedder) Option {
	return func(e *Engine) { e.embedder = emb }
}

func WithStore(s *vector.Store) Option {
	return func(e *Engine) { e.store = s }
}

// WithDatabaseProvider substitutes the external vector database used for
// the qdrant and pinecone vector_store types.
func WithDatabaseProvider(db databases.DatabaseProvider) Option {
	return func(e *Engine) { e.db = db }
}

func WithProviderRegistry(r *llms.ProviderRegistry) Option {
	return func(e *Engine) { e.providers = r }
}

func WithSessionService(s *memory.SessionService) Option {
	return func(e *Engine) { e.sessions = s }
}

func WithStageObserver(fn StageObserver) Option {
	return func(e *Engine) { e.observer = fn }
}

// WithIngestorOptions forwards options to the ingestion pipeline, such
// as embed worker counts or ingest observers.
func WithIngestorOptions(opts ...rag.IngestorOption) Option {
	return func(e *Engine) { e.ingestOpts = append(e.ingestOpts, opts...) }
}

// New builds an engine from configuration. The embedder is constructed
// eagerly so a misconfigured backend fails at startup, not on the first
// query.
func New(cfg *config.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("engine requires a configuration")
	}

	e := &Engine{
		cfg:       cfg,
		providers: llms.NewProviderRegistry(),
		handles:   make(map[handleKey]retriever),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.acquirer == nil {
		e.acquirer = repo.NewAcquirer(config.ReposDir())
	}
	if e.store == nil {
		e.store = vector.NewStore(config.DatabasesDir())
	}
	if e.embedder == nil {
		emb, err := embedders.NewEmbedder(&cfg.Embedder.Embedder)
		if err != nil {
			return nil, fmt.Errorf("embedder init failed: %w", err)
		}
		e.embedder = emb
	}
	if e.db == nil && cfg.Embedder.VectorStore.Type != "" && cfg.Embedder.VectorStore.Type != "memory" {
		db, err := databases.NewProviderFromConfig(&cfg.Embedder.VectorStore)
		if err != nil {
			return nil, fmt.Errorf("vector store init failed: %w", err)
		}
		e.db = db
	}
	if e.sessions == nil {
		e.sessions = memory.NewSessionService(
			cfg.Generator.Memory.MaxTurns,
			cfg.Generator.Memory.AutoCleanupEnabled(),
		)
	}
	e.ingestor = rag.NewIngestor(cfg, e.acquirer, e.embedder, e.store, e.ingestOpts...)
	return e, nil
}

// QueryRequest is one question against one repository.
type QueryRequest struct {
	// SessionID scopes conversation memory and warm handles. Empty
	// defaults to the repository ID, which matches stateless callers
	// that key their transcript by repository.
	SessionID string

	Repo     *repo.Descriptor
	Messages []llms.Message

	// PinnedFile names a repository file whose full contents are
	// included in the prompt alongside retrieved context.
	PinnedFile string

	Provider string
	Model    string
	Language string

	// Params overrides the catalog's sampling parameters.
	Params *config.ModelParams
}

// QueryResult is the metadata accumulated once a stream completes.
type QueryResult struct {
	RepoID             string
	Text               string
	TokensUsed         int
	DocumentsRetrieved int
}

// Stream delivers a query's answer. C yields text chunks in generation
// order, then exactly one done or error chunk, then closes. A stream
// cancelled by the caller closes without a terminal chunk.
type Stream struct {
	C <-chan llms.StreamChunk

	result *QueryResult
}

// Result returns the accumulated metadata. Valid only after C closes.
func (s *Stream) Result() *QueryResult { return s.result }

// Query runs the pipeline for one request. Failures in the staged setup
// (validation, acquisition, ingestion, retrieval) return before any
// stream exists; once a stream is returned, failures arrive as its
// terminal error chunk.
func (e *Engine) Query(ctx context.Context, req *QueryRequest) (*Stream, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	binding, err := e.cfg.Generator.ResolveBinding(req.Provider, req.Model, req.Params)
	if err != nil {
		return nil, &Error{Kind: KindValidation, Op: "resolve model", Err: err}
	}
	provider, err := e.providers.Acquire(ctx, binding)
	if err != nil {
		return nil, classify("initialize provider", err, KindProviderAuth)
	}

	finalIteration := e.cfg.Generator.Research.FinalIteration
	plan := planResearch(req.Messages, finalIteration)
	if plan.Query == "" {
		return nil, &Error{Kind: KindValidation, Op: "validate request", Err: fmt.Errorf("last user message is empty")}
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = req.Repo.RepoID()
	}

	ret, err := e.prepare(ctx, sessionID, req.Repo)
	if err != nil {
		return nil, classify("prepare repository", err, KindIngestion)
	}

	chunks, err := e.retrieve(ctx, ret, plan.Query)
	if err != nil {
		return nil, classify("retrieve context", err, KindProviderTransient)
	}

	var pinnedText string
	if req.PinnedFile != "" {
		pinnedText, err = e.acquirer.FetchFile(ctx, req.Repo, req.PinnedFile)
		if err != nil {
			return nil, classify("fetch pinned file", err, KindAcquisition)
		}
	}

	// Stateless callers resend the whole transcript; it wins over
	// whatever the session accumulated. A single-message request trusts
	// session memory instead.
	conv := e.sessions.Conversation(sessionID)
	if len(plan.Messages) > 1 {
		seedConversation(conv, plan.Messages[:len(plan.Messages)-1])
	}
	history := historyMessages(conv.Snapshot())

	meta := promptMeta{
		Label:   repoLabel(req.Repo),
		Host:    string(req.Repo.Kind),
		Locator: req.Repo.Locator,
	}
	langName := config.LanguageName(config.NormalizeLanguage(req.Language))
	system := buildSystemPrompt(plan.Mode, plan.Iteration, finalIteration, meta, langName)

	note := ""
	if len(chunks) == 0 {
		note = noContextNote
	}
	userTurn := assembleUserTurn(req.PinnedFile, pinnedText, chunks, note, plan.Query)

	out := make(chan llms.StreamChunk, 8)
	result := &QueryResult{RepoID: req.Repo.RepoID(), DocumentsRetrieved: len(chunks)}

	go func() {
		defer close(out)
		start := time.Now()

		text, genErr := e.generate(ctx, provider, requestFor(binding, system, history, userTurn), out)

		// Context-free fallback: when the provider rejects the prompt
		// size before any text reached the caller, retry once without
		// retrieved context.
		if genErr != nil && llms.IsTokenLimitError(genErr) && text == "" && len(chunks) > 0 {
			slog.Warn("Prompt exceeded model context, retrying without retrieved context",
				"repo", result.RepoID, "model", binding.Model)
			userTurn = assembleUserTurn(req.PinnedFile, pinnedText, nil, droppedContextNote, plan.Query)
			text, genErr = e.generate(ctx, provider, requestFor(binding, system, history, userTurn), out)
		}

		if genErr != nil {
			if ctx.Err() != nil {
				return
			}
			sendChunk(ctx, out, llms.StreamChunk{
				Type: llms.ChunkTypeError,
				Err:  classify("generate", genErr, KindProviderTransient),
			})
			return
		}
		if ctx.Err() != nil {
			// Cancelled mid-stream: terminate silently, record nothing.
			return
		}

		if _, err := conv.Append(plan.UserText, text); err != nil {
			slog.Warn("Conversation not recorded", "session", sessionID, "error", err)
		}
		result.Text = text
		result.TokensUsed = tokens.Estimate(system) + tokens.Estimate(userTurn) + tokens.Estimate(text)
		e.observe("generate", start)
		sendChunk(ctx, out, llms.StreamChunk{Type: llms.ChunkTypeDone})
	}()

	return &Stream{C: out, result: result}, nil
}

// Run executes a query to completion, draining the stream.
func (e *Engine) Run(ctx context.Context, req *QueryRequest) (*QueryResult, error) {
	stream, err := e.Query(ctx, req)
	if err != nil {
		return nil, err
	}
	for chunk := range stream.C {
		if chunk.Type == llms.ChunkTypeError {
			return nil, chunk.Err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, &Error{Kind: KindCancelled, Op: "generate", Err: err}
	}
	return stream.Result(), nil
}

// prepare returns a searchable handle for the repository, reusing the
// session's warm handle when one exists. With an external vector store
// configured, the reconciled index is mirrored there and search runs
// remotely; otherwise an in-process index serves it.
func (e *Engine) prepare(ctx context.Context, sessionID string, desc *repo.Descriptor) (retriever, error) {
	key := handleKey{session: sessionID, repoID: desc.RepoID()}
	e.mu.Lock()
	if ret, ok := e.handles[key]; ok {
		e.mu.Unlock()
		return ret, nil
	}
	e.mu.Unlock()

	start := time.Now()
	ri, err := e.ingestor.Ingest(ctx, desc)
	if err != nil {
		return nil, err
	}

	var ret retriever
	if e.db != nil {
		if err := syncRemote(ctx, e.db, ri); err != nil {
			return nil, err
		}
		ret = &remoteRetriever{db: e.db, collection: ri.RepoID}
	} else {
		idx, err := vector.BuildIndex(ctx, ri.Chunks, ri.Dimension)
		if err != nil {
			return nil, err
		}
		ret = &localRetriever{idx: idx}
	}
	e.observe("prepare", start)

	e.mu.Lock()
	e.handles[key] = ret
	e.mu.Unlock()
	return ret, nil
}

// retrieve embeds the query and materializes the top matching chunks.
func (e *Engine) retrieve(ctx context.Context, ret retriever, query string) ([]vector.Chunk, error) {
	start := time.Now()
	qv, err := e.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	chunks, err := ret.Retrieve(ctx, qv, e.cfg.Embedder.Retriever.TopK)
	if err != nil {
		return nil, err
	}
	e.observe("retrieve", start)
	return chunks, nil
}

// generate streams one provider call, forwarding text chunks to out and
// accumulating the full answer. The provider's terminal chunk is
// absorbed; the engine emits its own after finalization.
func (e *Engine) generate(ctx context.Context, provider llms.Provider, req *llms.Request, out chan<- llms.StreamChunk) (string, error) {
	stream, err := provider.GenerateStreaming(ctx, req)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for chunk := range stream {
		switch chunk.Type {
		case llms.ChunkTypeText:
			if chunk.Text == "" {
				continue
			}
			b.WriteString(chunk.Text)
			if !sendChunk(ctx, out, chunk) {
				return b.String(), ctx.Err()
			}
		case llms.ChunkTypeError:
			return b.String(), chunk.Err
		case llms.ChunkTypeDone:
			return b.String(), nil
		}
	}
	// Stream closed without a terminal chunk; the text stands.
	return b.String(), nil
}

// InvalidateRepo drops warm handles, the persisted index, and any remote
// collection for a repository, forcing the next query to re-ingest.
func (e *Engine) InvalidateRepo(repoID string) error {
	e.mu.Lock()
	for key := range e.handles {
		if key.repoID == repoID {
			delete(e.handles, key)
		}
	}
	e.mu.Unlock()

	if e.db != nil {
		if err := e.db.DeleteCollection(context.Background(), repoID); err != nil {
			slog.Warn("Remote collection not removed", "repo", repoID, "error", err)
		}
	}
	return e.store.Delete(repoID)
}

// Sessions exposes conversation memory for surfaces that manage session
// lifecycle directly.
func (e *Engine) Sessions() *memory.SessionService { return e.sessions }

// Close releases cached provider clients, the embedder, and any external
// vector store connection.
func (e *Engine) Close() error {
	e.providers.CloseAll()
	var errs []error
	if e.db != nil {
		if err := e.db.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := e.embedder.Close(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("engine close: %v", errs)
	}
	return nil
}

func (e *Engine) observe(stage string, start time.Time) {
	if e.observer != nil {
		e.observer(stage, time.Since(start))
	}
}

func validateRequest(req *QueryRequest) error {
	fail := func(err error) error {
		return &Error{Kind: KindValidation, Op: "validate request", Err: err}
	}
	if req == nil {
		return fail(fmt.Errorf("request is nil"))
	}
	if req.Repo == nil {
		return fail(fmt.Errorf("request names no repository"))
	}
	if len(req.Messages) == 0 {
		return fail(fmt.Errorf("request carries no messages"))
	}
	if last := req.Messages[len(req.Messages)-1]; last.Role != llms.RoleUser {
		return fail(fmt.Errorf("last message must come from the user, got role %q", last.Role))
	}
	return nil
}

// requestFor assembles the provider request: sampling from the resolved
// binding, history replayed before the final user turn.
func requestFor(binding config.Binding, system string, history []llms.Message, userTurn string) *llms.Request {
	msgs := make([]llms.Message, 0, len(history)+1)
	msgs = append(msgs, history...)
	msgs = append(msgs, llms.Message{Role: llms.RoleUser, Content: userTurn})
	return &llms.Request{
		System:      system,
		Messages:    msgs,
		Temperature: binding.Params.Temperature,
		TopP:        binding.Params.TopP,
		MaxTokens:   binding.Params.MaxTokens,
	}
}

// sendChunk delivers a chunk unless the caller has gone away.
func sendChunk(ctx context.Context, out chan<- llms.StreamChunk, chunk llms.StreamChunk) bool {
	select {
	case out <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

// seedConversation rebuilds session memory from a request transcript,
// pairing each user message with the assistant answer that follows it.
// A trailing user message without an answer is dropped.
func seedConversation(conv *memory.Conversation, transcript []llms.Message) {
	conv.Clear()
	var pendingUser string
	havePending := false
	for _, m := range transcript {
		switch m.Role {
		case llms.RoleUser:
			pendingUser = m.Content
			havePending = true
		case llms.RoleAssistant:
			if !havePending {
				continue
			}
			if _, err := conv.Append(pendingUser, m.Content); err != nil {
				return
			}
			havePending = false
		}
	}
}

// historyMessages replays recorded turns as alternating user and
// assistant messages.
func historyMessages(turns []memory.Turn) []llms.Message {
	msgs := make([]llms.Message, 0, len(turns)*2)
	for _, t := range turns {
		msgs = append(msgs, llms.Message{Role: llms.RoleUser, Content: t.UserText})
		msgs = append(msgs, llms.Message{Role: llms.RoleAssistant, Content: t.AssistantText})
	}
	return msgs
}

// repoLabel names the repository in prompts: owner/name for remote
// repositories, the directory name for local ones.
func repoLabel(desc *repo.Descriptor) string {
	if desc.Owner() != "" {
		return desc.Owner() + "/" + desc.Name()
	}
	return desc.Name()
}
