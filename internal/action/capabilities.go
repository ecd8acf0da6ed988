package action

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"voxelpilot.ai/internal/agent"
)

// Agent is the control surface a block may drive. *agent.Session implements it.
type Agent interface {
	MoveTo(ctx context.Context, t agent.Target) error
	Follow(ctx context.Context, player string) error
	LookAt(ctx context.Context, t agent.Target) error
	CollectBlock(ctx context.Context, blockType string, at *agent.Pos) error
	Give(ctx context.Context, player, item string, count int) error
	Chat(ctx context.Context, text string) error
	Stop(ctx context.Context) error
}

type capability struct {
	schema *jsonschema.Schema
	run    func(ctx context.Context, a Agent, inv Invocation, args []string) error
}

const schemaDraft = `"$schema": "https://json-schema.org/draft/2020-12/schema",`

// coordLimit bounds every coordinate argument.
const coordLimit = 1 << 20

var (
	nameSchema = `{"type": "string", "minLength": 1, "maxLength": 64}`
	intSchema  = fmt.Sprintf(`{"type": "integer", "minimum": %d, "maximum": %d}`, -coordLimit, coordLimit)
	textSchema = `{"type": ["string", "number"]}`
)

func tuple(items ...string) string {
	return fmt.Sprintf(`{"type": "array", "prefixItems": [%s], "minItems": %d, "maxItems": %d}`,
		strings.Join(items, ", "), len(items), len(items))
}

func oneOf(alts ...string) string {
	return `{` + schemaDraft + ` "oneOf": [` + strings.Join(alts, ", ") + `]}`
}

var capabilities = map[string]capability{
	"moveTo": {
		schema: compile("moveTo", oneOf(tuple(nameSchema), tuple(intSchema, intSchema, intSchema))),
		run: func(ctx context.Context, a Agent, inv Invocation, args []string) error {
			t, err := inv.target(args)
			if err != nil {
				return err
			}
			return a.MoveTo(ctx, t)
		},
	},
	"follow": {
		schema: compile("follow", oneOf(tuple(nameSchema))),
		run: func(ctx context.Context, a Agent, inv Invocation, args []string) error {
			return a.Follow(ctx, inv.player(args[0]))
		},
	},
	"lookAt": {
		schema: compile("lookAt", oneOf(tuple(nameSchema), tuple(intSchema, intSchema, intSchema))),
		run: func(ctx context.Context, a Agent, inv Invocation, args []string) error {
			t, err := inv.target(args)
			if err != nil {
				return err
			}
			return a.LookAt(ctx, t)
		},
	},
	"collectBlock": {
		schema: compile("collectBlock", oneOf(tuple(nameSchema), tuple(nameSchema, intSchema, intSchema, intSchema))),
		run: func(ctx context.Context, a Agent, inv Invocation, args []string) error {
			if len(args) == 4 {
				p, err := pos(args[1:])
				if err != nil {
					return err
				}
				return a.CollectBlock(ctx, args[0], &p)
			}
			return a.CollectBlock(ctx, args[0], nil)
		},
	},
	"give": {
		schema: compile("give", oneOf(
			tuple(nameSchema, nameSchema),
			tuple(nameSchema, nameSchema, `{"type": "integer", "minimum": 1, "maximum": 64}`),
		)),
		run: func(ctx context.Context, a Agent, inv Invocation, args []string) error {
			count := 1
			if len(args) == 3 {
				n, err := argInt(args[2], 64)
				if err != nil {
					return err
				}
				count = n
			}
			return a.Give(ctx, inv.player(args[0]), args[1], count)
		},
	},
	"chat": {
		schema: compile("chat", oneOf(tuple(textSchema))),
		run: func(ctx context.Context, a Agent, inv Invocation, args []string) error {
			return a.Chat(ctx, args[0])
		},
	},
	"stop": {
		schema: compile("stop", oneOf(`{"type": "array", "maxItems": 0}`)),
		run: func(ctx context.Context, a Agent, inv Invocation, args []string) error {
			return a.Stop(ctx)
		},
	},
}

func compile(verb, schema string) *jsonschema.Schema {
	return jsonschema.MustCompileString(verb+".schema.json", schema)
}

// Verbs lists the allowed capability names.
func Verbs() []string {
	out := make([]string, 0, len(capabilities))
	for v := range capabilities {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// validate checks a parsed call against the allow-list and its argument schema.
func validate(c Call) (capability, error) {
	capb, ok := capabilities[c.Verb]
	if !ok {
		return capability{}, fmt.Errorf("line %d: %s is not an allowed action", c.Line, c.Verb)
	}
	if err := capb.schema.Validate(c.values()); err != nil {
		return capability{}, fmt.Errorf("line %d: bad arguments for %s", c.Line, c)
	}
	return capb, nil
}

// target resolves a single player argument or an x, y, z triple.
func (inv Invocation) target(args []string) (agent.Target, error) {
	if len(args) == 3 {
		p, err := pos(args)
		if err != nil {
			return agent.Target{}, err
		}
		return agent.PosTarget(p), nil
	}
	return agent.PlayerTarget(inv.player(args[0])), nil
}

// player maps the placeholders "target" and "me" to the player who asked.
func (inv Invocation) player(name string) string {
	if strings.EqualFold(name, "target") || strings.EqualFold(name, "me") {
		return inv.User
	}
	return name
}

func pos(args []string) (agent.Pos, error) {
	var p agent.Pos
	for i := range p {
		n, err := argInt(args[i], coordLimit)
		if err != nil {
			return agent.Pos{}, err
		}
		p[i] = n
	}
	return p, nil
}

// argInt parses an integral numeral like "3" or "3.0" within [-limit, limit].
func argInt(s string, limit int) (int, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) {
		return 0, fmt.Errorf("%q is not an integer", s)
	}
	if f < -float64(limit) || f > float64(limit) {
		return 0, fmt.Errorf("%s is out of range", s)
	}
	return int(f), nil
}
