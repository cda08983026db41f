package engine

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/kadirpekel/repochat/pkg/llms"
	"github.com/kadirpekel/repochat/pkg/repo"
)

// repoSection is one repository's finished contribution to a fan-out
// answer.
type repoSection struct {
	label  string
	result *QueryResult
	err    error
}

// FanOut runs one query per repository and merges the answers into a
// single stream. Sections appear in request order with a per-repository
// header; each is emitted as soon as it completes and every earlier
// section has been flushed. A failing repository contributes an inline
// failure note instead of aborting the others. Exactly one done chunk
// terminates the merged stream.
func (e *Engine) FanOut(ctx context.Context, repos []*repo.Descriptor, base *QueryRequest, parallel int) (*Stream, error) {
	if len(repos) == 0 {
		return nil, &Error{Kind: KindValidation, Op: "validate request", Err: fmt.Errorf("request names no repository")}
	}
	if len(repos) == 1 {
		req := *base
		req.Repo = repos[0]
		return e.Query(ctx, &req)
	}

	// Shape problems should fail before any stream starts, not surface
	// repeated once per repository.
	probe := *base
	probe.Repo = repos[0]
	if err := validateRequest(&probe); err != nil {
		return nil, err
	}

	// One buffered slot per repository keeps completion order decoupled
	// from emission order: a fast late repository parks its section
	// until every earlier one has streamed.
	slots := make([]chan repoSection, len(repos))
	for i := range slots {
		slots[i] = make(chan repoSection, 1)
	}

	if parallel < 1 {
		parallel = 1
	}
	var g errgroup.Group
	g.SetLimit(parallel)

	// Go blocks once the limit is saturated, so scheduling runs off the
	// caller's goroutine.
	go func() {
		for i, desc := range repos {
			slot := slots[i]
			g.Go(func() error {
				req := *base
				req.Repo = desc
				if base.SessionID != "" {
					req.SessionID = base.SessionID + "/" + desc.RepoID()
				}
				res, err := e.Run(ctx, &req)
				slot <- repoSection{label: repoLabel(desc), result: res, err: err}
				return nil
			})
		}
		_ = g.Wait()
	}()

	ids := make([]string, len(repos))
	for i, desc := range repos {
		ids[i] = desc.RepoID()
	}
	result := &QueryResult{RepoID: strings.Join(ids, ",")}
	out := make(chan llms.StreamChunk, 8)

	go func() {
		defer close(out)

		var merged strings.Builder
		for i := range slots {
			var sec repoSection
			select {
			case sec = <-slots[i]:
			case <-ctx.Done():
				return
			}
			if sec.err != nil && IsCancelled(sec.err) {
				return
			}

			header := "## " + sec.label + "\n\n"
			body := ""
			if sec.err != nil {
				body = fmt.Sprintf("(no answer: %v)", sec.err)
			} else {
				body = sec.result.Text
				result.TokensUsed += sec.result.TokensUsed
				result.DocumentsRetrieved += sec.result.DocumentsRetrieved
			}
			body = strings.TrimRight(body, "\n") + "\n\n"

			if !sendChunk(ctx, out, llms.StreamChunk{Type: llms.ChunkTypeText, Text: header}) {
				return
			}
			if !sendChunk(ctx, out, llms.StreamChunk{Type: llms.ChunkTypeText, Text: body}) {
				return
			}
			merged.WriteString(header)
			merged.WriteString(body)
		}
		result.Text = strings.TrimRight(merged.String(), "\n")
		sendChunk(ctx, out, llms.StreamChunk{Type: llms.ChunkTypeDone})
	}()

	return &Stream{C: out, result: result}, nil
}
