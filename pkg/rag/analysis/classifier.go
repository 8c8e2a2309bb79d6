package analysis

import (
	"regexp"
	"strings"

	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/pkg/rag/state"
)

// Outcome tells how the analysis response was resolved.
type Outcome int

const (
	ResolvedDirect Outcome = iota
	ResolvedCalc
	ForcedCalcFallback
	ForcedDirectFallback
)

func (o Outcome) String() string {
	switch o {
	case ResolvedDirect:
		return "resolved_direct"
	case ResolvedCalc:
		return "resolved_calc"
	case ForcedCalcFallback:
		return "forced_calc_fallback"
	case ForcedDirectFallback:
		return "forced_direct_fallback"
	default:
		return "unknown"
	}
}

// Result holds exactly one of a plan (NeedsComputation) or a non-empty answer.
type Result struct {
	Outcome          Outcome
	NeedsComputation bool
	Plan             *state.Plan
	Answer           string
}

type branch int

const (
	branchNone branch = iota
	branchCalc
	branchDirect
)

// Rule is one pattern of the cascade together with the branch it votes for.
type Rule struct {
	Name    string
	Pattern *regexp.Regexp
	votes   branch
}

func calcRule(name, pattern string) Rule {
	return Rule{Name: name, Pattern: regexp.MustCompile(pattern), votes: branchCalc}
}

func directRule(name, pattern string) Rule {
	return Rule{Name: name, Pattern: regexp.MustCompile(pattern), votes: branchDirect}
}

const (
	minDirectAnswerChars = 15
	minStepsChars        = 10
	minCodeChars         = 5
)

var (
	stepsBlock    = regexp.MustCompile("(?is)(?:STEPS?|ETAPES?)\\s*:?\\s*\\n(.*?)(?:ALGORITHM|ALGORITHME|```|$)")
	numberedLines = regexp.MustCompile(`(?m)^\s*\d+[.)]\s+.+$`)
	pythonFence   = regexp.MustCompile("(?s)```python\\s*\\n(.*?)```")
	anyFence      = regexp.MustCompile("(?s)```[a-zA-Z0-9_-]*\\s*\\n(.*?)```")
	algoBlock     = regexp.MustCompile(`(?is)(?:ALGORITHM|ALGORITHME)\s*:\s*(.*)$`)

	directMarker   = regexp.MustCompile(`(?is)TYPE\s*:\s*DIRECT\s*(.*)$`)
	answerMarker   = regexp.MustCompile(`(?is)(?:ANSWER|R[EÉ]PONSE)\s*:\s*(.*)$`)
	directLine     = regexp.MustCompile(`(?i)TYPE\s*:\s*DIRECT`)
	markerNoise    = regexp.MustCompile(`(?i)(?:DIRECT_ANSWER|REPONSE_DIRECTE|FORMAT\s*2|(?:ANSWER|R[EÉ]PONSE)\s*:)`)
	calcMarkerLine = regexp.MustCompile(`(?i)TYPE\s*:\s*(?:CALCULATIONS|CALCULS)`)

	questionCues = regexp.MustCompile(`(?i)(?:^|[^\p{L}\d])(?:total|sum|percentage|percent|average|mean|maximum|minimum|compare|comparison|evolution|trend|statistics?|proportion|ratio|how many|highest|lowest|growth|distribution|combien|pourcentage|moyenne|calcul|calculer|évolution|tendance|statistiques?|plus élevée?)(?:$|[^\p{L}\d])`)

	sumCue     = regexp.MustCompile(`(?i)\b(?:total|sum|somme)\b`)
	averageCue = regexp.MustCompile(`(?i)\b(?:average|mean|moyenne)\b`)
	compareCue = regexp.MustCompile(`(?i)\bcompar`)
)

// Classifier resolves a free-form analysis response into an Outcome.
// Rules are evaluated in order; the slice is never mutated after construction.
type Classifier struct {
	strict    []Rule
	secondary []Rule
}

func NewClassifier() *Classifier {
	return &Classifier{
		strict: []Rule{
			calcRule("type_calculations", `(?i)TYPE\s*:\s*(?:CALCULATIONS|CALCULS)`),
			directRule("type_direct", `(?i)TYPE\s*:\s*DIRECT`),
		},
		secondary: []Rule{
			calcRule("calculations_needed", `(?i)CALCULATIONS_NEEDED|CALCULS_NECESSAIRES`),
			calcRule("format_1", `(?i)FORMAT\s*1`),
			calcRule("steps", `(?i)STEPS?\s*:|ETAPES?\s*:`),
			calcRule("algorithm", `(?i)ALGORITHM\s*:|ALGORITHME\s*:`),
			calcRule("python_fence", "```python"),
			calcRule("dataframe_call", `df\d+\.`),
			directRule("direct_answer", `(?i)DIRECT_ANSWER|REPONSE_DIRECTE`),
			directRule("format_2", `(?i)FORMAT\s*2`),
			directRule("answer", `(?i)(?:ANSWER|REPONSE)\s*:`),
		},
	}
}

// Classify always returns a Result satisfying the plan-xor-answer invariant.
func (c *Classifier) Classify(response, question string) Result {
	switch c.decide(response, question) {
	case branchCalc:
		if plan, ok := ExtractPlan(response); ok {
			return Result{Outcome: ResolvedCalc, NeedsComputation: true, Plan: plan}
		}
		return Result{Outcome: ForcedCalcFallback, NeedsComputation: true, Plan: GenericPlan(question)}
	default:
		if answer, ok := ExtractDirectAnswer(response); ok {
			return Result{Outcome: ResolvedDirect, Answer: answer}
		}
		answer := stripMarkers(response)
		if answer == "" {
			answer = "Analysis in progress for: " + question
		}
		return Result{Outcome: ForcedDirectFallback, Answer: answer}
	}
}

func (c *Classifier) decide(response, question string) branch {
	for _, r := range c.strict {
		if r.Pattern.MatchString(response) {
			return r.votes
		}
	}

	var calc, direct bool
	for _, r := range c.secondary {
		if !r.Pattern.MatchString(response) {
			continue
		}
		if r.votes == branchCalc {
			calc = true
		} else {
			direct = true
		}
	}
	switch {
	case calc && !direct:
		return branchCalc
	case direct && !calc:
		return branchDirect
	}

	if HasComputationCues(question) {
		return branchCalc
	}
	return branchDirect
}

// HasComputationCues reports whether the question itself asks for figures.
func HasComputationCues(question string) bool {
	return questionCues.MatchString(question)
}

// ExtractPlan pulls the steps and code out of a calculation response.
func ExtractPlan(response string) (*state.Plan, bool) {
	steps := ""
	if m := stepsBlock.FindStringSubmatch(response); m != nil {
		steps = strings.TrimSpace(m[1])
	}
	if len(steps) < minStepsChars {
		steps = strings.TrimSpace(strings.Join(numberedLines.FindAllString(response, -1), "\n"))
	}
	if len(steps) < minStepsChars {
		steps = ""
	}

	code := ""
	for _, re := range []*regexp.Regexp{pythonFence, anyFence, algoBlock} {
		if m := re.FindStringSubmatch(response); m != nil {
			if candidate := strings.TrimSpace(m[1]); len(candidate) >= minCodeChars {
				code = candidate
				break
			}
		}
	}

	if steps == "" && code == "" {
		return nil, false
	}

	description := firstLine(steps)
	if description == "" {
		description = "computation requested by the analysis"
	}
	return &state.Plan{Description: description, Steps: steps, Code: code}, true
}

// GenericPlan is used when the response asked for computation without saying how.
func GenericPlan(question string) *state.Plan {
	switch {
	case sumCue.MatchString(question):
		return &state.Plan{
			Description: "sum the numeric columns",
			Steps:       "1. Load df0\n2. Sum every numeric column",
			Code:        "print(df0.sum(numeric_only=True))",
		}
	case averageCue.MatchString(question):
		return &state.Plan{
			Description: "average the numeric columns",
			Steps:       "1. Load df0\n2. Average every numeric column",
			Code:        "print(df0.mean(numeric_only=True))",
		}
	case compareCue.MatchString(question):
		return &state.Plan{
			Description: "compare the datasets",
			Steps:       "1. Load df0 and df1\n2. Describe each one side by side",
			Code:        compareCode,
		}
	default:
		return &state.Plan{
			Description: "describe the dataset",
			Steps:       "1. Load df0\n2. Print summary statistics",
			Code:        "print(df0.describe())",
		}
	}
}

// ExtractDirectAnswer returns the answer text when it is long enough to stand alone.
func ExtractDirectAnswer(response string) (string, bool) {
	var body string
	if m := directMarker.FindStringSubmatch(response); m != nil {
		body = m[1]
	} else if m := answerMarker.FindStringSubmatch(response); m != nil {
		body = m[1]
	} else {
		return "", false
	}

	body = calcMarkerLine.ReplaceAllString(body, "")
	body = strings.TrimSpace(markerNoise.ReplaceAllString(body, ""))
	if len([]rune(body)) <= minDirectAnswerChars {
		return "", false
	}
	return body, true
}

// compareCode only touches the dfN frames the sandbox actually defined.
const compareCode = `for name in ("df0", "df1", "df2"):
    if name in globals():
        print(name)
        print(globals()[name].describe())`

// stripMarkers removes classification markers so a raw response can be shown as an answer.
func stripMarkers(response string) string {
	out := directLine.ReplaceAllString(response, "")
	out = calcMarkerLine.ReplaceAllString(out, "")
	out = markerNoise.ReplaceAllString(out, "")
	return strings.TrimSpace(out)
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(line)
}
