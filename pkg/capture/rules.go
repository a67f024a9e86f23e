package capture

const (
	PinnacleHost       = "guest.api.arcadia.pinnacle.com"
	Bet365Coupons      = "matchbettingcontentapi"
	DefaultPinnacleDir = "raw_pinnacle"
	DefaultBet365Dir   = "raw_bet365_asian"
)

// DefaultRuleGroups is the provider rule table, in evaluation order:
//
//   - pinnacle: full straight markets of a matchup, one snapshot per matchup
//   - bet365_asian: asian handicap and total chunks, accumulated per event
//   - related: matchups related to a matchup, one snapshot per matchup
//
// A straight-markets URL also contains "/related", which is why the related group excludes
// anything under "/markets/".
func DefaultRuleGroups(pinnacleDir, bet365Dir string) []RuleGroup {
	return []RuleGroup{
		{
			Name: "pinnacle",
			Rules: []MatchRule{
				{
					SourceTag: "pinnacle",
					Predicate: Contains(PinnacleHost, "markets/related/straight"),
					Extract:   Between("/matchups/", "/"),
					Mode:      Overwrite,
					Dir:       pinnacleDir,
					Ext:       ".json",
				},
			},
		},
		{
			Name: "bet365_asian",
			Rules: []MatchRule{
				{
					SourceTag: "bet365_asian",
					Predicate: AllOf(
						Contains(Bet365Coupons),
						ContainsAny("coupon", "partial"),
						QueryContains("pd", "I3"),
					),
					Extract: QueryMarker("pd", "I3", "#E", "#"),
					Mode:    AppendWithSeparator,
					Dir:     bet365Dir,
					Ext:     ".txt",
				},
			},
		},
		{
			Name: "related",
			Rules: []MatchRule{
				{
					SourceTag: "related",
					Predicate: AllOf(
						Contains(PinnacleHost, "/related"),
						Excludes("/markets/"),
					),
					Extract: Between("/matchups/", "/"),
					Mode:    Overwrite,
					Dir:     pinnacleDir,
					Ext:     ".json",
				},
			},
		},
	}
}
