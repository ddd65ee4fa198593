package engine

// participants lists who answers the current round, in player order.
func participants(m Match) []string {
	if m.Variant == VariantSync {
		return m.Players
	}
	if m.Turn.CurrentUID == "" {
		return nil
	}
	return []string{m.Turn.CurrentUID}
}

// Opponent returns the other player, or "" when uid is not one of two players.
func Opponent(m Match, uid string) string {
	if len(m.Players) != 2 {
		return ""
	}
	switch uid {
	case m.Players[0]:
		return m.Players[1]
	case m.Players[1]:
		return m.Players[0]
	}
	return ""
}

// rotate hands the spin to the other player and clears the streak.
func rotate(m *Match) []Event {
	t := &m.Turn
	t.CurrentUID = Opponent(*m, t.CurrentUID)
	resetStreak(t)
	t.ChallengeSymbol = ""
	t.Phase = PhaseSpin
	t.Next = NextNone
	t.ResultAt = nil
	return []Event{{Type: EvtTurnAdvanced, UID: t.CurrentUID}}
}
