package session

// BuildContext returns the context window for a provider call: the largest
// suffix of the session history whose cumulative token estimate fits the
// configured budget. Whole messages are dropped oldest-first; the window is
// never punched from the middle. The most recent message is always included,
// even when it alone exceeds the budget.
func (m *Manager) BuildContext(id string) ([]Message, error) {
	s, err := m.get(id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := s.messages
	if len(msgs) == 0 {
		return nil, nil
	}

	budget := m.cfg.ContextBudgetTokens
	start := len(msgs) - 1
	total := msgs[start].Tokens
	for start > 0 && total+msgs[start-1].Tokens <= budget {
		start--
		total += msgs[start].Tokens
	}

	out := make([]Message, len(msgs)-start)
	copy(out, msgs[start:])
	return out, nil
}

// ContextTokens sums the token estimates of a built context.
func ContextTokens(msgs []Message) int {
	total := 0
	for _, msg := range msgs {
		total += msg.Tokens
	}
	return total
}
