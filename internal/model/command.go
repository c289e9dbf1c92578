package model

import "fmt"

// NavigationCommand enumerates navigation intent as issued by the
// session or by content through the data model.
type NavigationCommand int

const (
	// Start begins the sequencing session by delivering the first activity.
	Start NavigationCommand = iota

	// Continue moves forward; Previous moves backward.
	Continue
	Previous

	// Choose targets a specific activity. ChoiceStart is the fallback used
	// when Start cannot identify a first activity: leaves are tried
	// left-to-right until one can be delivered.
	Choose
	ChoiceStart

	// Exit ends the attempt on the current activity; ExitAll ends the
	// whole sequencing session.
	Exit
	ExitAll

	// SuspendAll suspends the session for a later ResumeAll.
	SuspendAll
	ResumeAll

	// Abandon / AbandonAll end attempts without rollup of final status.
	AbandonAll
	Abandon

	// UnqualifiedExit is an exit whose scope is decided by the current
	// activity's pending exit mode.
	UnqualifiedExit
)

var commandNames = map[NavigationCommand]string{
	Start:           "start",
	Continue:        "continue",
	Previous:        "previous",
	Choose:          "choose",
	ChoiceStart:     "choiceStart",
	Exit:            "exit",
	ExitAll:         "exitAll",
	SuspendAll:      "suspendAll",
	ResumeAll:       "resumeAll",
	AbandonAll:      "abandonAll",
	Abandon:         "abandon",
	UnqualifiedExit: "unqualifiedExit",
}

func (c NavigationCommand) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("NavigationCommand(%d)", int(c))
}

// ParseNavigationCommand maps the wire/scenario spelling of a command
// back to its value.
func ParseNavigationCommand(s string) (NavigationCommand, error) {
	for c, name := range commandNames {
		if name == s {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown navigation command %q", s)
}
