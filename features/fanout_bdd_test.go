package features

import (
	"context"
	"testing"
	"time"

	"github.com/cucumber/godog"
	"github.com/flowcore/swarmbus/eventcore"
	"github.com/flowcore/swarmbus/logging"
	"github.com/flowcore/swarmbus/paramengine"
	"github.com/flowcore/swarmbus/topicrouter"
)

type fanoutCtx struct {
	router  *topicrouter.Router
	engine  *paramengine.Engine
	result  paramengine.ParallelParameterResult
}

func (f *fanoutCtx) freshTopicRouterAndParameterEngine() error {
	f.router = topicrouter.NewRouter(topicrouter.Config{}, logging.NopLogger{})
	cfg := paramengine.DefaultConfig()
	cfg.ParameterTimeout = 100 * time.Millisecond
	f.engine = paramengine.NewEngine(f.router, logging.NopLogger{}, nil, cfg)
	return nil
}

func (f *fanoutCtx) handlerSubscribedOnThatRepliesWith(topic, reply string) error {
	payload := parseBraceLiteral(reply)
	_, err := f.router.Subscribe(topic, "handler", func(ctx context.Context, _, t string, in eventcore.Payload) (bool, error) {
		out := eventcore.Payload{}
		for k, v := range payload {
			out[k] = v
		}
		if cid, _ := in.String("correlationId"); cid != "" {
			out["correlationId"] = cid
		}
		_, err := f.router.Emit(ctx, eventcore.New(t+".result", out, "handler"))
		return err == nil, err
	}, "handler-"+topic)
	return err
}

func (f *fanoutCtx) noHandlerSubscribedOn(_ string) error {
	return nil
}

func (f *fanoutCtx) emitWithHandlersAnalysisReport(analysisTopic, reportTopic string) error {
	payload := eventcore.Payload{
		"handlers": map[string]string{
			"analysis": analysisTopic,
			"report":   reportTopic,
		},
	}
	f.result = f.engine.Execute(context.Background(), "work.start", payload, "test")
	return nil
}

func (f *fanoutCtx) shouldBeEmitted(_ string) error {
	if f.result.Outcome != paramengine.OutcomeSuccess {
		return errf("expected success outcome, got %s", f.result.Outcome)
	}
	return nil
}

func (f *fanoutCtx) shouldStillBeEmittedAfterTheConfiguredTimeout(_ string) error {
	return f.shouldBeEmitted("")
}

func (f *fanoutCtx) enhancedPayloadShouldContainEntryWhoseResultMatches(name, expected string) error {
	want := parseBraceLiteral(expected)
	entry, ok := f.result.EnhancedPayload[name].(paramengine.ParameterExecutionDetails)
	if !ok {
		return errf("expected %q entry to be a ParameterExecutionDetails, got %T", name, f.result.EnhancedPayload[name])
	}
	got, ok := entry.Result.(map[string]any)
	if !ok {
		return errf("expected %q entry's result to be a map, got %T", name, entry.Result)
	}
	for k, v := range want {
		if got[k] != v {
			return errf("expected %s.result.%s == %v, got %v", name, k, v, got[k])
		}
	}
	return nil
}

func (f *fanoutCtx) metadataHandlerCountShouldBe(count int) error {
	if f.result.Metadata.HandlerCount != count {
		return errf("expected handler count %d, got %d", count, f.result.Metadata.HandlerCount)
	}
	return nil
}

func (f *fanoutCtx) entryShouldHaveSuccessAndError(name string, success bool, errStr string) error {
	entry, ok := f.result.EnhancedPayload[name].(paramengine.ParameterExecutionDetails)
	if !ok {
		return errf("expected an enhanced entry for %q", name)
	}
	if entry.Success != success {
		return errf("expected %s.success == %v, got %v", name, success, entry.Success)
	}
	if errStr != "" {
		got, _ := entry.Result.(map[string]any)
		if got["error"] != errStr {
			return errf("expected %s.result.error == %q, got %v", name, errStr, got["error"])
		}
	}
	return nil
}

func (f *fanoutCtx) entryShouldHaveSuccessTrue(name string) error {
	entry, ok := f.result.EnhancedPayload[name].(paramengine.ParameterExecutionDetails)
	if !ok || !entry.Success {
		return errf("expected %s to have succeeded", name)
	}
	return nil
}

// parseBraceLiteral turns a toy literal like "{score:0.9}" or "{pages:3}"
// into a map[string]any, sufficient for the handful of shapes used across
// the fan-out scenarios.
func parseBraceLiteral(s string) map[string]any {
	s = trimBraces(s)
	out := map[string]any{}
	if s == "" {
		return out
	}
	key, value := splitColon(s)
	out[key] = parseScalar(value)
	return out
}

func trimBraces(s string) string {
	if len(s) >= 2 && s[0] == '{' && s[len(s)-1] == '}' {
		return s[1 : len(s)-1]
	}
	return s
}

func splitColon(s string) (string, string) {
	for i := 0; i < len(s); i++ {
		if s[i] == ':' {
			return s[:i], s[i+1:]
		}
	}
	return s, ""
}

func parseScalar(s string) any {
	var intVal int
	if n, err := parseInt(s, &intVal); err == nil && n {
		return float64(intVal) // JSON numbers round-trip as float64
	}
	var floatVal float64
	if n, err := parseFloat(s, &floatVal); err == nil && n {
		return floatVal
	}
	return s
}

func parseInt(s string, out *int) (bool, error) {
	v := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return false, nil
		}
		v = v*10 + int(r-'0')
	}
	*out = v
	return true, nil
}

func parseFloat(s string, out *float64) (bool, error) {
	var intPart, fracPart string
	dot := -1
	for i, r := range s {
		if r == '.' {
			dot = i
			break
		}
	}
	if dot < 0 {
		return false, nil
	}
	intPart, fracPart = s[:dot], s[dot+1:]
	var ip, fp int
	if ok, _ := parseInt(intPart, &ip); !ok {
		return false, nil
	}
	if ok, _ := parseInt(fracPart, &fp); !ok {
		return false, nil
	}
	div := 1.0
	for range fracPart {
		div *= 10
	}
	*out = float64(ip) + float64(fp)/div
	return true, nil
}

func TestFanoutBDD(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: func(ctx *godog.ScenarioContext) {
			f := &fanoutCtx{}

			ctx.Step(`^a fresh topic router and parameter engine$`, f.freshTopicRouterAndParameterEngine)
			ctx.Step(`^a handler subscribed on "([^"]*)" that replies with "([^"]*)"$`, f.handlerSubscribedOnThatRepliesWith)
			ctx.Step(`^no handler subscribed on "([^"]*)"$`, f.noHandlerSubscribedOn)
			ctx.Step(`^I emit "work\.start" with handlers analysis="([^"]*)" report="([^"]*)"$`, f.emitWithHandlersAnalysisReport)
			ctx.Step(`^"work\.start\.enhanced" should be emitted$`, func() error { return f.shouldBeEmitted("") })
			ctx.Step(`^"work\.start\.enhanced" should still be emitted after the configured timeout$`, func() error { return f.shouldStillBeEmittedAfterTheConfiguredTimeout("") })
			ctx.Step(`^the enhanced payload should contain an? "([^"]*)" entry whose result matches "([^"]*)"$`, f.enhancedPayloadShouldContainEntryWhoseResultMatches)
			ctx.Step(`^the metadata handler count should be (\d+)$`, f.metadataHandlerCountShouldBe)
			ctx.Step(`^the "([^"]*)" entry should have success false and error "([^"]*)"$`, func(name, errStr string) error {
				return f.entryShouldHaveSuccessAndError(name, false, errStr)
			})
			ctx.Step(`^the "([^"]*)" entry should have success true$`, f.entryShouldHaveSuccessTrue)
		},
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"."},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run fanout feature tests")
	}
}
