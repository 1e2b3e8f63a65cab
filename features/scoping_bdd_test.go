package features

import (
	"context"
	"fmt"
	"testing"

	"github.com/cucumber/godog"
	"github.com/flowcore/swarmbus/agentbus"
	"github.com/flowcore/swarmbus/eventcore"
	"github.com/flowcore/swarmbus/logging"
	"github.com/flowcore/swarmbus/topicrouter"
)

type scopingCtx struct {
	bus       *agentbus.Bus
	agentIDs  map[string]string
	received  map[string][]string // agent name -> topics received
}

func (s *scopingCtx) reset() {
	s.bus = agentbus.New(topicrouter.NewRouter(topicrouter.Config{}, logging.NopLogger{}), logging.NopLogger{}, nil)
	s.agentIDs = map[string]string{}
	s.received = map[string][]string{}
}

func (s *scopingCtx) track(name string) eventcore.Handler {
	return func(_ context.Context, _ string, topic string, _ eventcore.Payload) (bool, error) {
		s.received[name] = append(s.received[name], topic)
		return true, nil
	}
}

func (s *scopingCtx) freshAgentBus() error {
	s.reset()
	return nil
}

// subscribeAll subscribes id to every topic exercised by the scoping
// scenarios. There is no bare "match everything" wildcard in the router
// (only "prefix.*"), so the scenario's fixed topic set is named directly.
func (s *scopingCtx) subscribeAll(name, id string) error {
	for _, topic := range []string{"x", "allowed", "other"} {
		if _, err := s.bus.Subscribe(id, topic, "track-"+name, s.track(name)); err != nil {
			return err
		}
	}
	return nil
}

func (s *scopingCtx) agentJoinedWithGlobalScope(name string) error {
	id, err := s.bus.JoinBus(name, "", agentbus.ScopeGlobal, nil, nil, "")
	if err != nil {
		return err
	}
	s.agentIDs[name] = id
	err = s.subscribeAll(name, id)
	return err
}

func (s *scopingCtx) agentJoinedWithRoleScope(name, role string) error {
	id, err := s.bus.JoinBus(name, role, agentbus.ScopeRole, nil, nil, "")
	if err != nil {
		return err
	}
	s.agentIDs[name] = id
	err = s.subscribeAll(name, id)
	return err
}

func (s *scopingCtx) agentJoinedWithChannelScope(name, channel string) error {
	id, err := s.bus.JoinBus(name, "", agentbus.ScopeChannel, []string{channel}, nil, "")
	if err != nil {
		return err
	}
	s.agentIDs[name] = id
	err = s.subscribeAll(name, id)
	return err
}

func (s *scopingCtx) agentJoinedWithEventFilters(name, filter string) error {
	id, err := s.bus.JoinBus(name, "", agentbus.ScopeGlobal, nil, []string{filter}, "")
	if err != nil {
		return err
	}
	s.agentIDs[name] = id
	err = s.subscribeAll(name, id)
	return err
}

func (s *scopingCtx) emitTargetedAtRole(topic, role string) error {
	_, err := s.bus.Emit(context.Background(), topic, nil, "test", agentbus.WithTargetRole(role))
	return err
}

func (s *scopingCtx) emitTargetedAtChannel(topic, channel string) error {
	_, err := s.bus.Emit(context.Background(), topic, nil, "test", agentbus.WithTargetChannel(channel))
	return err
}

func (s *scopingCtx) emitWithNoTarget(topic string) error {
	_, err := s.bus.Emit(context.Background(), topic, nil, "test")
	return err
}

func (s *scopingCtx) onlyAgentShouldHaveReceivedIt(name string) error {
	for other := range s.agentIDs {
		if other == name {
			continue
		}
		if len(s.received[other]) > 0 {
			return errf("expected only %s to receive, but %s also received", name, other)
		}
	}
	if len(s.received[name]) == 0 {
		return errf("expected %s to receive, but it did not", name)
	}
	s.received = map[string][]string{}
	return nil
}

func (s *scopingCtx) bothAgentsShouldHaveReceivedIt(a, b string) error {
	if len(s.received[a]) == 0 || len(s.received[b]) == 0 {
		return errf("expected both %s and %s to receive", a, b)
	}
	s.received = map[string][]string{}
	return nil
}

func (s *scopingCtx) agentShouldHaveReceivedIt(name string) error {
	if len(s.received[name]) == 0 {
		return errf("expected %s to receive", name)
	}
	s.received = map[string][]string{}
	return nil
}

func (s *scopingCtx) agentShouldNotHaveReceivedIt(name string) error {
	if len(s.received[name]) != 0 {
		return errf("expected %s not to receive", name)
	}
	s.received = map[string][]string{}
	return nil
}

func errf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}

func TestScopingBDD(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: func(ctx *godog.ScenarioContext) {
			s := &scopingCtx{}

			ctx.Step(`^a fresh agent bus$`, s.freshAgentBus)
			ctx.Step(`^agent "([^"]*)" has joined with global scope$`, s.agentJoinedWithGlobalScope)
			ctx.Step(`^agent "([^"]*)" has joined with role scope "([^"]*)"$`, s.agentJoinedWithRoleScope)
			ctx.Step(`^agent "([^"]*)" has joined with channel scope "([^"]*)"$`, s.agentJoinedWithChannelScope)
			ctx.Step(`^agent "([^"]*)" has joined with event filters "([^"]*)"$`, s.agentJoinedWithEventFilters)
			ctx.Step(`^I emit "([^"]*)" targeted at role "([^"]*)"$`, s.emitTargetedAtRole)
			ctx.Step(`^I emit "([^"]*)" targeted at channel "([^"]*)"$`, s.emitTargetedAtChannel)
			ctx.Step(`^I emit "([^"]*)" with no target$`, s.emitWithNoTarget)
			ctx.Step(`^only agent "([^"]*)" should have received it$`, s.onlyAgentShouldHaveReceivedIt)
			ctx.Step(`^both agent "([^"]*)" and agent "([^"]*)" should have received it$`, s.bothAgentsShouldHaveReceivedIt)
			ctx.Step(`^agent "([^"]*)" should have received it$`, s.agentShouldHaveReceivedIt)
			ctx.Step(`^agent "([^"]*)" should not have received it$`, s.agentShouldNotHaveReceivedIt)
		},
		Options: &godog.Options{
			Format: "pretty",
			Paths:  []string{"."},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run scoping feature tests")
	}
}
