package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"text/template"
	"time"

	"github.com/ekvall/kartklickare/logger"
)

// CallbackName is the function the completion script invokes on the host
// side. The surface exposes it into the page under this name.
const CallbackName = "__kartklickareComplete"

const defaultRequestTimeout = 30 * time.Second

// ErrTimeout is returned when no callback arrives within the request timeout.
var ErrTimeout = errors.New("bridge request timed out")

// Evaluator runs a self-contained script inside the embedded surface.
// Evaluation is fire-and-forget: results come back through the host
// callback, never through the evaluation call itself.
type Evaluator interface {
	Eval(js string) error
}

// requestScript performs a credentialed fetch inside the page, tags the
// decoded response with host-supplied literals, and reports the outcome
// through the host callback. Every dynamic value is JSON-encoded before
// substitution, so page content can never escape into script source.
var requestScript = template.Must(template.New("request").Parse(`async () => {
	const send = async () => {
		try {
			const request = await fetch({{.URL}}, {
				method: 'GET',
				credentials: 'include',
			});
			const response = await request.json();
{{- range .Extra}}
			response[{{.Key}}] = {{.Value}};
{{- end}}
			return response;
		} catch (error) {
			return { err: error.toString() };
		}
	};
	const result = await send();
	window[{{.Callback}}]({ id: {{.ID}}, payload: result });
}`))

type scriptField struct {
	Key   string
	Value string
}

type scriptParams struct {
	URL      string
	ID       string
	Callback string
	Extra    []scriptField
}

// Invoker issues fetch-and-report scripts into the surface and awaits
// their correlated callbacks.
type Invoker struct {
	pool    *Pool
	eval    Evaluator
	timeout time.Duration
}

func NewInvoker(eval Evaluator, pool *Pool, timeout time.Duration) *Invoker {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &Invoker{
		pool:    pool,
		eval:    eval,
		timeout: timeout,
	}
}

// Pool returns the correlation pool backing this invoker.
func (inv *Invoker) Pool() *Pool {
	return inv.pool
}

// SendRequest fetches url through the surface's authenticated network
// context, attaching the extra literal fields to the decoded response.
// It blocks until the in-page script reports back, the timeout elapses,
// or ctx is cancelled.
func (inv *Invoker) SendRequest(ctx context.Context, url string, extra map[string]string) (map[string]any, error) {
	id, waiter := inv.pool.Register()

	js, err := buildRequestScript(url, id, extra)
	if err != nil {
		inv.pool.Abandon(id)
		return nil, fmt.Errorf("build bridge script: %w", err)
	}

	if err := inv.eval.Eval(js); err != nil {
		inv.pool.Abandon(id)
		return nil, fmt.Errorf("evaluate bridge script: %w", err)
	}

	timer := time.NewTimer(inv.timeout)
	defer timer.Stop()

	select {
	case outcome := <-waiter:
		if outcome.Err != "" {
			return nil, fmt.Errorf("bridge request failed: %s", outcome.Err)
		}
		return outcome.Payload, nil
	case <-timer.C:
		inv.pool.Abandon(id)
		return nil, fmt.Errorf("%w after %s", ErrTimeout, inv.timeout)
	case <-ctx.Done():
		inv.pool.Abandon(id)
		return nil, ctx.Err()
	}
}

// Complete is the host-exposed completion entry point. The payload's err
// field, when present, marks the request as failed.
func (inv *Invoker) Complete(id string, payload map[string]any) {
	outcome := Outcome{Payload: payload}
	if errVal, ok := payload["err"]; ok {
		outcome = Outcome{Err: fmt.Sprintf("%v", errVal)}
	}
	if !inv.pool.Resolve(id, outcome) {
		logger.Debug("dropped bridge callback", "id", id)
	}
}

func buildRequestScript(url, id string, extra map[string]string) (string, error) {
	params := scriptParams{
		URL:      jsString(url),
		ID:       jsString(id),
		Callback: jsString(CallbackName),
	}

	keys := make([]string, 0, len(extra))
	for key := range extra {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		params.Extra = append(params.Extra, scriptField{
			Key:   jsString(key),
			Value: jsString(extra[key]),
		})
	}

	var sb strings.Builder
	if err := requestScript.Execute(&sb, params); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// jsString encodes s as a JS string literal. json.Marshal cannot fail for
// a plain string.
func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
