package crisis

// Classify 按规则级联判定严重等级，自上而下首个命中的规则生效。
//
// 只有存在自杀意念时才会检查计划/手段，单独 HasMeans 不会升级（保持现有行为）。
func Classify(in Input) Severity {
	switch {
	case in.ImmediateRisk:
		return SeverityEmergency
	case in.SuicidalIdeation && in.HasPlan && in.HasMeans:
		return SeverityEmergency
	case in.SuicidalIdeation && (in.HasPlan || in.HasMeans):
		return SeverityCritical
	case in.SuicidalIdeation || in.HomicidalIdeation:
		return SeverityHigh
	case in.SelfHarmRisk || in.SubstanceUse:
		return SeverityModerate
	default:
		return SeverityLow
	}
}
