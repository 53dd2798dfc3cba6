package testutil

import "time"

// Standard conversation IDs created by WithStandardTestData.
const (
	StandardMainID    = "demo-main-00000001"
	StandardFeatureID = "demo-feature-login-00000002"
)

// WithStandardTestData adds two conversations for projectPath: "main" in the
// build phase with two live and one deleted interaction, and "feature/login"
// in the design phase with no interactions.
func (b *Builder) WithStandardTestData(projectPath string) *Builder {
	lastWeek := time.Now().Add(-7 * 24 * time.Hour)

	return b.
		WithConversation(StandardMainID, projectPath,
			Branch("main"), Phase("build"), CreatedAt(lastWeek)).
		WithConversation(StandardFeatureID, projectPath,
			Branch("feature/login"), Phase("design")).
		WithInteraction(StandardMainID, Tool("start_development"), AtPhase("design"), Input(`{"workflow":"design-build"}`)).
		WithInteraction(StandardMainID, Tool("proceed_to_phase"), Input(`{"target_phase":"build"}`)).
		WithInteraction(StandardMainID, Tool("whats_next"), Deleted())
}
