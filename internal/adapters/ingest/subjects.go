package ingest

import "fmt"

// Subject layout: <env>.walks.location.<sessionID> for fixes and
// <env>.walks.control.<sessionID> for lifecycle commands.

func SubjectLocation(env, sessionID string) string {
	return fmt.Sprintf("%s.walks.location.%s", env, sessionID)
}

func SubjectControl(env, sessionID string) string {
	return fmt.Sprintf("%s.walks.control.%s", env, sessionID)
}

func subjectLocationWildcard(env string) string {
	return fmt.Sprintf("%s.walks.location.*", env)
}

func subjectControlWildcard(env string) string {
	return fmt.Sprintf("%s.walks.control.*", env)
}
