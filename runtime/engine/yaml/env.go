package yaml

import "github.com/BDNK1/wizflow/runtime"

// sessionEnv exposes a session to expressions as plain maps.
func sessionEnv(s *runtime.Session) map[string]any {
	flags := make(map[string]any, len(s.Flags))
	for k, v := range s.Flags {
		flags[string(k)] = v
	}

	items := make([]any, len(s.Items))
	for i, item := range s.Items {
		items[i] = map[string]any(item)
	}

	answers := s.Answers
	if answers == nil {
		answers = map[string]any{}
	}

	return map[string]any{
		"answers": answers,
		"flags":   flags,
		"items":   items,
		"item":    map[string]any{},
		"index":   runtime.NoIndex,
		"payload": map[string]any{},
	}
}

// stepEnv adds the submitted payload and the item in play.
func stepEnv(s *runtime.Session, index int, payload runtime.Payload) map[string]any {
	env := sessionEnv(s)
	env["index"] = index
	if payload != nil {
		env["payload"] = map[string]any(payload)
	}
	if index >= 0 && index < len(s.Items) && s.Items[index] != nil {
		env["item"] = map[string]any(s.Items[index])
	}
	return env
}
