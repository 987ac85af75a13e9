// Package httpexec executes runbook steps against the operations executor
// service. Each step's action names a remote procedure; verification checks
// run as a second call against the executor's check endpoint. Dry runs never
// leave the process: the runner fabricates a deterministic simulated output
// so disaster-recovery tests exercise the full execution path without
// touching real infrastructure.
package httpexec

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/taxops/season-orchestrator/internal/core/domain"
	"github.com/taxops/season-orchestrator/internal/infrastructure/resilience"
)

type Runner struct {
	baseURL    string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL string, callTimeout time.Duration, executor *resilience.Executor) *Runner {
	if callTimeout <= 0 {
		callTimeout = 5 * time.Minute
	}
	return &Runner{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: callTimeout},
		executor:   executor,
	}
}

type runRequest struct {
	Action string `json:"action"`
	Step   int    `json:"step"`
}

type runResponse struct {
	Output string `json:"output"`
}

type verifyRequest struct {
	Check  string `json:"check"`
	Output string `json:"output"`
}

type verifyResponse struct {
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// Run implements ports.StepEffect.
func (r *Runner) Run(ctx context.Context, step domain.RunbookStep, dryRun bool) (string, error) {
	if dryRun {
		return fmt.Sprintf("simulated: %s", step.Action), nil
	}

	var output string
	call := func(ctx context.Context) error {
		out, err := r.runOnce(ctx, step)
		if err != nil {
			return err
		}
		output = out
		return nil
	}

	var err error
	if r.executor != nil {
		err = r.executor.Execute(ctx, "steps.run", call)
	} else {
		err = call(ctx)
	}
	return output, err
}

// Verify implements ports.StepVerifier. Dry runs are verified locally so the
// simulated output always passes.
func (r *Runner) Verify(ctx context.Context, step domain.RunbookStep, output string) error {
	if strings.HasPrefix(output, "simulated: ") {
		return nil
	}
	return r.verifyOnce(ctx, step, output)
}

func (r *Runner) runOnce(ctx context.Context, step domain.RunbookStep) (string, error) {
	resp, err := r.post(ctx, "/v1/steps/run", runRequest{Action: step.Action, Step: step.Step})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, "run step"); err != nil {
		return "", err
	}
	var out runResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode step response: %w", err)
	}
	return out.Output, nil
}

func (r *Runner) verifyOnce(ctx context.Context, step domain.RunbookStep, output string) error {
	resp, err := r.post(ctx, "/v1/steps/verify", verifyRequest{Check: step.Verification, Output: output})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, "verify step"); err != nil {
		return err
	}
	var out verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("decode verify response: %w", err)
	}
	if !out.Passed {
		return domain.WrapError(domain.ErrVerification, "verify step",
			fmt.Errorf("check %q failed: %s", step.Verification, out.Detail))
	}
	return nil
}

func (r *Runner) post(ctx context.Context, path string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, domain.WrapError(domain.ErrTransientEffect, "executor request", err)
	}
	return resp, nil
}

func checkStatus(resp *http.Response, op string) error {
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return domain.WrapError(domain.ErrTransientEffect, op,
			fmt.Errorf("executor status %s", resp.Status))
	}
	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return domain.WrapError(domain.ErrValidation, op,
			fmt.Errorf("executor status %s: %s", resp.Status, strings.TrimSpace(string(snippet))))
	}
	return nil
}
