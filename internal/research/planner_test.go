package research

import (
	"reflect"
	"strings"
	"testing"

	"github.com/portsight/portsight-back/internal/domain"
)

func TestPlanIsDeterministic(t *testing.T) {
	entity := domain.EntityContext{
		Name:     "Rotterdam",
		Country:  "Netherlands",
		Region:   "Northwest Europe",
		UNLocode: "NLRTM",
	}

	first := Plan(domain.EntityPort, entity)
	second := Plan(domain.EntityPort, entity)

	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expected identical plans for identical inputs")
	}
}

func TestPlanQueryCountsPerEntityType(t *testing.T) {
	cases := []struct {
		entityType domain.EntityType
		expected   int
	}{
		{domain.EntityPort, 3},
		{domain.EntityTerminal, 2},
		{domain.EntityTerminalOperator, 3},
	}

	for _, testCase := range cases {
		plan := Plan(testCase.entityType, domain.EntityContext{Name: "Subject"})
		if len(plan) != testCase.expected {
			t.Fatalf("expected %d queries for %s, got %d", testCase.expected, testCase.entityType, len(plan))
		}
		sections := Sections(testCase.entityType)
		if len(sections) != testCase.expected {
			t.Fatalf("expected %d sections for %s, got %d", testCase.expected, testCase.entityType, len(sections))
		}
		for i, config := range plan {
			if config.Header != sections[i].Header {
				t.Fatalf("query %d header %q does not match section %q", i, config.Header, sections[i].Header)
			}
			if config.Category != sections[i].Category {
				t.Fatalf("query %d category %q does not match section %q", i, config.Category, sections[i].Category)
			}
		}
	}
}

func TestPlanUsesPremiumTierForAuthorityCategories(t *testing.T) {
	portPlan := Plan(domain.EntityPort, domain.EntityContext{Name: "Singapore"})
	if portPlan[0].Category != CategoryPortGovernance || portPlan[0].Tier != TierPremium {
		t.Fatalf("expected premium tier for governance, got %s/%s", portPlan[0].Category, portPlan[0].Tier)
	}
	for _, config := range portPlan[1:] {
		if config.Tier != TierStandard {
			t.Fatalf("expected standard tier for %s, got %s", config.Category, config.Tier)
		}
	}

	operatorPlan := Plan(domain.EntityTerminalOperator, domain.EntityContext{Name: "PSA International"})
	if operatorPlan[0].Category != CategoryOperatorProfile || operatorPlan[0].Tier != TierPremium {
		t.Fatalf("expected premium tier for profile, got %s/%s", operatorPlan[0].Category, operatorPlan[0].Tier)
	}
}

func TestPlanInterpolatesEntityContext(t *testing.T) {
	plan := Plan(domain.EntityPort, domain.EntityContext{
		Name:     "Santos",
		Country:  "Brazil",
		UNLocode: "BRSSZ",
	})

	if !strings.Contains(plan[0].Query, "Santos (Brazil)") {
		t.Fatalf("expected governance query to name the port and country, got %q", plan[0].Query)
	}
	if !strings.Contains(plan[0].Query, "BRSSZ") {
		t.Fatalf("expected governance query to carry the UN/LOCODE, got %q", plan[0].Query)
	}

	terminalPlan := Plan(domain.EntityTerminal, domain.EntityContext{
		Name:     "Tecon 1",
		PortName: "Santos",
	})
	if !strings.Contains(terminalPlan[0].Query, "Tecon 1 at the port of Santos") {
		t.Fatalf("expected terminal query to anchor on the parent port, got %q", terminalPlan[0].Query)
	}
}

func TestPlanPanicsOnUnknownEntityType(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for unknown entity type")
		}
	}()
	Plan(domain.EntityType("vessel"), domain.EntityContext{Name: "X"})
}
