// Package agent drives the iterative editing loop for a session.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lemurlabs/lemur-agent/internal/channel"
	"github.com/lemurlabs/lemur-agent/internal/config"
	"github.com/lemurlabs/lemur-agent/internal/domain"
	"github.com/lemurlabs/lemur-agent/internal/edit"
	"github.com/lemurlabs/lemur-agent/internal/oracle"
	"github.com/lemurlabs/lemur-agent/internal/store"
)

// maxIterationsMessage is the fixed message published when a session runs
// out of iterations without the backend signalling completion.
const maxIterationsMessage = "Reached maximum iterations"

// persistTimeout bounds the snapshot writes done on terminal paths, which
// must succeed even when the loop context is already cancelled.
const persistTimeout = 5 * time.Second

// Channel is the front-end conduit the runner publishes to and receives
// observations from. Satisfied by *channel.Manager.
type Channel interface {
	Send(ctx context.Context, sessionID string, event channel.Event) bool
	ReceiveWithTimeout(ctx context.Context, sessionID string, timeout time.Duration) (*channel.Observation, bool)
}

// Runner executes session loops. Each session's loop runs as one task that
// holds exclusive logical ownership of the session record for its lifetime;
// the runner itself is stateless and shared.
type Runner struct {
	repo               store.Repository
	oracles            *oracle.Registry
	pipeline           *edit.Pipeline
	ch                 Channel
	archive            *Archiver
	observationTimeout time.Duration
	screenshotDir      string
	dumpDir            string
}

// NewRunner wires a runner from resolved dependencies.
func NewRunner(repo store.Repository, oracles *oracle.Registry, pipeline *edit.Pipeline, ch Channel, archive *Archiver, cfg *config.Config) *Runner {
	return &Runner{
		repo:               repo,
		oracles:            oracles,
		pipeline:           pipeline,
		ch:                 ch,
		archive:            archive,
		observationTimeout: cfg.ObservationTimeout,
		screenshotDir:      cfg.ScreenshotDir,
		dumpDir:            cfg.DebugDumpDir,
	}
}

// Run drives the session loop until a terminal state. Any failure inside
// the loop body becomes an error transition with a persisted snapshot and
// exactly one terminal event; there are no automatic retries.
func (r *Runner) Run(ctx context.Context, sessionID string) {
	slog.Info("Session loop starting", "session_id", sessionID)

	waiting := false
	initialImage := ""

	for {
		if err := ctx.Err(); err != nil {
			// Connection dropped mid-turn: record the error before the
			// channel resources are released.
			r.fail(sessionID, fmt.Sprintf("session cancelled: %v", err))
			return
		}

		sess, err := r.repo.GetSession(ctx, sessionID)
		if err != nil {
			r.fail(sessionID, fmt.Sprintf("load session: %v", err))
			return
		}
		if sess == nil {
			// Nothing to snapshot; still emit the terminal event.
			slog.Error("Session disappeared from store", "session_id", sessionID)
			r.ch.Send(context.Background(), sessionID, channel.Error("session not found"))
			return
		}

		if sess.Status.Terminal() {
			slog.Info("Session already terminal", "session_id", sessionID, "status", sess.Status)
			return
		}

		if sess.CurrentIteration >= sess.MaxIterations {
			r.complete(sess, maxIterationsMessage)
			return
		}

		if waiting {
			waiting = false
			if done := r.collectObservation(ctx, sess); done {
				return
			}
			continue
		}

		gen, err := r.generate(ctx, sess, &initialImage)
		if err != nil {
			r.fail(sessionID, err.Error())
			return
		}

		switch gen.Status {
		case domain.GenerationCompleted:
			r.complete(sess, gen.Message)
			return
		case domain.GenerationError:
			r.fail(sessionID, gen.Message)
			return
		case domain.GenerationAppliedEdit:
			if err := r.applyEdit(ctx, sess, gen); err != nil {
				r.fail(sessionID, err.Error())
				return
			}
			waiting = true
		}
	}
}

// collectObservation blocks for front-end feedback after a published edit.
// A timeout is not fatal: the flag is cleared and the next backend turn
// proceeds without this turn's feedback. Returns true when the loop must
// exit because persistence failed.
func (r *Runner) collectObservation(ctx context.Context, sess *domain.Session) bool {
	obs, ok := r.ch.ReceiveWithTimeout(ctx, sess.ID, r.observationTimeout)
	if !ok {
		slog.Info("No observation within timeout, proceeding without feedback",
			"session_id", sess.ID, "iteration", sess.CurrentIteration)
		if err := sess.SetStatus(domain.StatusProcessing); err != nil {
			r.fail(sess.ID, err.Error())
			return true
		}
		if err := r.repo.PutSession(ctx, sess); err != nil {
			r.fail(sess.ID, fmt.Sprintf("persist session: %v", err))
			return true
		}
		return false
	}

	turn := domain.Turn{Role: domain.RoleUser, Content: obs.Summary, Timestamp: time.Now()}
	if obs.Screenshot != "" {
		path, err := SaveScreenshot(r.screenshotDir, sess.ID, obs.Screenshot)
		if err != nil {
			slog.Warn("Failed to save observation screenshot", "session_id", sess.ID, "error", err)
		} else {
			turn.ImagePath = path
		}
	}
	sess.AppendTurn(turn)
	if err := sess.SetStatus(domain.StatusProcessing); err != nil {
		r.fail(sess.ID, err.Error())
		return true
	}
	if err := r.repo.PutSession(ctx, sess); err != nil {
		r.fail(sess.ID, fmt.Sprintf("persist session: %v", err))
		return true
	}
	return false
}

// generate builds the prompt for the session's next turn, calls its
// completion backend, and parses the result. Parse failures write a
// diagnostic dump before surfacing.
func (r *Runner) generate(ctx context.Context, sess *domain.Session, initialImage *string) (*domain.Generation, error) {
	if sess.Status == domain.StatusCreated {
		if err := sess.SetStatus(domain.StatusProcessing); err != nil {
			return nil, err
		}
		if err := r.repo.PutSession(ctx, sess); err != nil {
			return nil, fmt.Errorf("persist session: %w", err)
		}
	}

	if len(sess.Turns) == 0 && sess.InitialScreenshot != "" && *initialImage == "" {
		path, err := SaveScreenshot(r.screenshotDir, sess.ID, sess.InitialScreenshot)
		if err != nil {
			slog.Warn("Failed to save initial screenshot", "session_id", sess.ID, "error", err)
		} else {
			*initialImage = path
		}
	}

	prompt, imagePath := oracle.BuildPrompt(sess, *initialImage)

	client, err := r.oracles.Resolve(sess.Backend)
	if err != nil {
		return nil, err
	}

	raw, err := client.Complete(ctx, oracle.CompletionRequest{Prompt: prompt, ImagePath: imagePath})
	if err != nil {
		return nil, err
	}

	gen, err := oracle.Parse(raw)
	if err != nil {
		if perr, ok := err.(*oracle.ParseError); ok {
			oracle.DumpParseFailure(r.dumpDir, perr)
		}
		return nil, err
	}
	return gen, nil
}

// applyEdit runs the edit pipeline for one applied_edit generation,
// records the agent turn, publishes the apply_edit event, and advances the
// iteration counter.
func (r *Runner) applyEdit(ctx context.Context, sess *domain.Session, gen *domain.Generation) error {
	final, newShielded, err := r.pipeline.Apply(ctx, sess.CurrentShieldedHTML, gen.Edits, sess.Placeholders)
	if err != nil {
		return err
	}

	sess.AppendTurn(domain.Turn{
		Role:      domain.RoleAgent,
		Content:   gen.Message,
		Edits:     gen.Edits,
		Timestamp: time.Now(),
	})
	sess.CurrentIteration++
	sess.CurrentHTML = final
	sess.CurrentShieldedHTML = newShielded
	sess.Message = gen.Message
	if err := sess.SetStatus(domain.StatusAppliedEdit); err != nil {
		return err
	}
	if err := r.repo.PutSession(ctx, sess); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}

	if !r.ch.Send(ctx, sess.ID, channel.ApplyEdit(final, gen.Message, sess.CurrentIteration)) {
		slog.Warn("Failed to publish apply_edit event", "session_id", sess.ID)
	}

	slog.Info("Edit applied", "session_id", sess.ID, "iteration", sess.CurrentIteration)
	return nil
}

// complete writes the terminal completed state, persists a snapshot, and
// emits the single completed event.
func (r *Runner) complete(sess *domain.Session, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	sess.Message = message
	if err := sess.SetStatus(domain.StatusCompleted); err != nil {
		slog.Error("Completed transition rejected", "session_id", sess.ID, "error", err)
	}
	if err := r.repo.PutSession(ctx, sess); err != nil {
		slog.Error("Failed to persist completed session", "session_id", sess.ID, "error", err)
	}
	r.archive.Snapshot(sess)

	r.ch.Send(ctx, sess.ID, channel.Completed(message))
	slog.Info("Session completed", "session_id", sess.ID, "iterations", sess.CurrentIteration)
}

// fail converts any loop failure into the terminal error state: best-effort
// snapshot persistence, then exactly one error event.
func (r *Runner) fail(sessionID, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	slog.Error("Session failed", "session_id", sessionID, "error", message)

	sess, err := r.repo.GetSession(ctx, sessionID)
	if err == nil && sess != nil && !sess.Status.Terminal() {
		sess.Message = message
		if terr := sess.SetStatus(domain.StatusError); terr != nil {
			slog.Error("Error transition rejected", "session_id", sessionID, "error", terr)
		}
		if perr := r.repo.PutSession(ctx, sess); perr != nil {
			slog.Error("Failed to persist failed session", "session_id", sessionID, "error", perr)
		}
		r.archive.Snapshot(sess)
	}

	r.ch.Send(ctx, sessionID, channel.Error(message))
}
