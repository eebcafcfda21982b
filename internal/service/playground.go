package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/js2py-docs/internal/apperror"
	"github.com/sakif/js2py-docs/internal/auth"
	"github.com/sakif/js2py-docs/internal/content"
	"github.com/sakif/js2py-docs/internal/execution"
	"github.com/sakif/js2py-docs/internal/loader"
	"github.com/sakif/js2py-docs/internal/model"
	"github.com/sakif/js2py-docs/internal/snippet"
)

// MaxCodeLength bounds a single source text.
const MaxCodeLength = 100000

// BlockFinder looks up a playground block of a document.
// *DocumentService implements it.
type BlockFinder interface {
	Block(ctx context.Context, slug string, index int) (*content.PlaygroundBlock, error)
}

// StatusReporter is a loader as seen by the runtime status endpoint.
type StatusReporter interface {
	Status() loader.Status
}

// MountRequest describes a new instance: either a document block or raw
// sources.
type MountRequest struct {
	Document   string `json:"document"`
	Block      int    `json:"block"`
	Python     string `json:"python"`
	JavaScript string `json:"javascript"`
}

// Mounted is what a mount returns to the caller.
type Mounted struct {
	Instance execution.Snapshot       `json:"instance"`
	Token    string                   `json:"token"`
	Block    *content.PlaygroundBlock `json:"block,omitempty"`
}

// RunOutcome reports a run request and the instance state after it.
type RunOutcome struct {
	Status   execution.RunStatus `json:"status"`
	Instance execution.Snapshot  `json:"instance"`
}

// PlaygroundService mounts, runs and unmounts UI instances.
type PlaygroundService struct {
	registry *execution.Registry
	blocks   BlockFinder
	tokens   *auth.TokenService
	runtimes []StatusReporter
	logger   *slog.Logger
}

func NewPlaygroundService(registry *execution.Registry, blocks BlockFinder, tokens *auth.TokenService, runtimes []StatusReporter, logger *slog.Logger) *PlaygroundService {
	return &PlaygroundService{
		registry: registry,
		blocks:   blocks,
		tokens:   tokens,
		runtimes: runtimes,
		logger:   logger,
	}
}

// Mount creates an instance and a token for it.
//
// With Document set, the instance starts from that document's playground
// number Block and the raw sources are ignored. Otherwise the raw sources
// are used as given.
func (s *PlaygroundService) Mount(ctx context.Context, req MountRequest) (*Mounted, error) {
	var (
		sources snippet.Set
		block   *content.PlaygroundBlock
	)

	if strings.TrimSpace(req.Document) != "" {
		b, err := s.blocks.Block(ctx, req.Document, req.Block)
		if err != nil {
			return nil, err
		}
		block = b
		sources = b.Snippets
	} else {
		if err := checkCode("python", req.Python); err != nil {
			return nil, err
		}
		if err := checkCode("javascript", req.JavaScript); err != nil {
			return nil, err
		}
		sources = snippet.Set{Python: req.Python, JavaScript: req.JavaScript}
	}

	c := s.registry.Mount(sources)
	if block != nil && block.ReadOnly {
		c.MakeReadOnly()
	}
	token, err := s.tokens.Generate(c.ID())
	if err != nil {
		s.registry.Unmount(c.ID())
		return nil, fmt.Errorf("issuing instance token: %w", err)
	}

	s.logger.Info("instance mounted",
		slog.String("instance", c.ID()),
		slog.String("document", req.Document),
	)
	return &Mounted{Instance: c.Snapshot(), Token: token, Block: block}, nil
}

// Authorize checks that a token issued for tokenInstance may act on id.
func (s *PlaygroundService) Authorize(tokenInstance, id string) error {
	if tokenInstance == "" || tokenInstance != id {
		return apperror.Forbidden("instance token does not match this instance")
	}
	return nil
}

// Get returns the state of an instance.
func (s *PlaygroundService) Get(id string) (execution.Snapshot, error) {
	c, err := s.registry.Get(id)
	if err != nil {
		return execution.Snapshot{}, err
	}
	return c.Snapshot(), nil
}

// Controller returns the instance itself. The WebSocket stream uses it to
// push theme changes.
func (s *PlaygroundService) Controller(id string) (*execution.Controller, error) {
	return s.registry.Get(id)
}

// SetSource replaces one of an instance's sources.
func (s *PlaygroundService) SetSource(id, language, text string) (execution.Snapshot, error) {
	lang, err := parseLanguage(language)
	if err != nil {
		return execution.Snapshot{}, err
	}
	if err := checkCode(string(lang), text); err != nil {
		return execution.Snapshot{}, err
	}

	c, err := s.registry.Get(id)
	if err != nil {
		return execution.Snapshot{}, err
	}
	if err := c.SetSource(lang, text); err != nil {
		return execution.Snapshot{}, err
	}
	return c.Snapshot(), nil
}

// Run runs one of an instance's sources and waits for the result.
func (s *PlaygroundService) Run(ctx context.Context, id, language string) (*RunOutcome, error) {
	lang, err := parseLanguage(language)
	if err != nil {
		return nil, err
	}

	c, err := s.registry.Get(id)
	if err != nil {
		return nil, err
	}
	status, err := c.Run(ctx, lang)
	if err != nil {
		return nil, err
	}
	return &RunOutcome{Status: status, Instance: c.Snapshot()}, nil
}

// Unmount removes an instance.
func (s *PlaygroundService) Unmount(id string) error {
	if err := s.registry.Unmount(id); err != nil {
		return err
	}
	s.logger.Info("instance unmounted", slog.String("instance", id))
	return nil
}

// Execute runs code once without mounting an instance. A nil result with
// RunSkipped means the code was empty.
func (s *PlaygroundService) Execute(ctx context.Context, language, code string) (*model.ExecutionResult, execution.RunStatus, error) {
	lang, err := parseLanguage(language)
	if err != nil {
		return nil, "", err
	}
	if err := checkCode("code", code); err != nil {
		return nil, "", err
	}
	return s.registry.RunOnce(ctx, lang, code)
}

// Runtimes reports the state of every shared runtime loader.
func (s *PlaygroundService) Runtimes() []loader.Status {
	statuses := make([]loader.Status, 0, len(s.runtimes))
	for _, r := range s.runtimes {
		statuses = append(statuses, r.Status())
	}
	return statuses
}

func parseLanguage(s string) (model.Language, error) {
	if strings.TrimSpace(s) == "" {
		return "", apperror.ValidationFailed("language", "language is required")
	}
	lang, err := model.ParseLanguage(s)
	if err != nil {
		return "", apperror.ValidationFailed("language", err.Error())
	}
	return lang, nil
}

func checkCode(field, code string) error {
	if len(code) > MaxCodeLength {
		return apperror.ValidationFailed(field,
			fmt.Sprintf("code must be %d characters or less", MaxCodeLength))
	}
	return nil
}
