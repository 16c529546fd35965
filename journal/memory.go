package journal

// Memory keeps everything in slices. Used by tests and by callers that
// consume run results programmatically (parameter sweeps).
type Memory struct {
	Runs         []RunRecord
	Trades       []TradeRecord
	Rejections   []RejectionRecord
	RiskActions  []RiskActionRecord
	Regimes      []RegimeRecord
	Equity       []EquitySnapshot
	Attributions []AttributionRecord
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) BeginRun(r RunRecord) error {
	m.Runs = append(m.Runs, r)
	return nil
}

func (m *Memory) EndRun(r RunRecord) error {
	for i := range m.Runs {
		if m.Runs[i].RunID == r.RunID {
			m.Runs[i] = r
			return nil
		}
	}
	m.Runs = append(m.Runs, r)
	return nil
}

func (m *Memory) RecordTrade(t TradeRecord) error {
	m.Trades = append(m.Trades, t)
	return nil
}

func (m *Memory) RecordRejection(r RejectionRecord) error {
	m.Rejections = append(m.Rejections, r)
	return nil
}

func (m *Memory) RecordRiskAction(a RiskActionRecord) error {
	m.RiskActions = append(m.RiskActions, a)
	return nil
}

func (m *Memory) RecordRegime(r RegimeRecord) error {
	m.Regimes = append(m.Regimes, r)
	return nil
}

func (m *Memory) RecordEquity(e EquitySnapshot) error {
	m.Equity = append(m.Equity, e)
	return nil
}

func (m *Memory) RecordAttribution(a AttributionRecord) error {
	m.Attributions = append(m.Attributions, a)
	return nil
}

func (m *Memory) Close() error { return nil }
