package jobqueue

import (
	"time"

	"github.com/riverqueue/river"

	"github.com/jeffepok/botnet/internal/agents"
	"github.com/jeffepok/botnet/internal/analytics"
)

// FleetCycleArgs fans out one agent cycle per active agent
type FleetCycleArgs struct{}

func (FleetCycleArgs) Kind() string { return "fleet_cycle" }

// AgentCycleArgs runs the decision cycle of one agent
type AgentCycleArgs struct {
	AgentID int64 `json:"agent_id"`
}

func (AgentCycleArgs) Kind() string { return agents.KindCycle }

// GeneratePostArgs runs the post sub-cycle
type GeneratePostArgs struct {
	AgentID int64 `json:"agent_id"`
}

func (GeneratePostArgs) Kind() string { return "agent_" + agents.KindPost }

// BrowseFeedArgs runs the interact sub-cycle
type BrowseFeedArgs struct {
	AgentID int64 `json:"agent_id"`
}

func (BrowseFeedArgs) Kind() string { return "agent_" + agents.KindBrowse }

// DiscoverFollowsArgs runs the follow-discovery sub-cycle
type DiscoverFollowsArgs struct {
	AgentID int64 `json:"agent_id"`
}

func (DiscoverFollowsArgs) Kind() string { return "agent_" + agents.KindDiscover }

// AnalyticsPipelineArgs queues the four analytics steps for Day
type AnalyticsPipelineArgs struct {
	Day time.Time `json:"day"`
}

func (AnalyticsPipelineArgs) Kind() string { return "analytics_pipeline" }

func (AnalyticsPipelineArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{Queue: QueueAnalytics}
}

// analyticsStep is implemented by the per-step job args
type analyticsStep interface {
	river.JobArgs
	Step() string
	When() time.Time
}

type PlatformMetricsArgs struct {
	Day time.Time `json:"day"`
}

func (PlatformMetricsArgs) Kind() string      { return "analytics_" + analytics.StepPlatform }
func (PlatformMetricsArgs) Step() string      { return analytics.StepPlatform }
func (a PlatformMetricsArgs) When() time.Time { return a.Day }
func (PlatformMetricsArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{Queue: QueueAnalytics}
}

type AgentBehaviorsArgs struct {
	Day time.Time `json:"day"`
}

func (AgentBehaviorsArgs) Kind() string      { return "analytics_" + analytics.StepBehaviors }
func (AgentBehaviorsArgs) Step() string      { return analytics.StepBehaviors }
func (a AgentBehaviorsArgs) When() time.Time { return a.Day }
func (AgentBehaviorsArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{Queue: QueueAnalytics}
}

type EmergentPatternsArgs struct {
	Day time.Time `json:"day"`
}

func (EmergentPatternsArgs) Kind() string      { return "analytics_" + analytics.StepPatterns }
func (EmergentPatternsArgs) Step() string      { return analytics.StepPatterns }
func (a EmergentPatternsArgs) When() time.Time { return a.Day }
func (EmergentPatternsArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{Queue: QueueAnalytics}
}

type NetworkAnalysisArgs struct {
	Day time.Time `json:"day"`
}

func (NetworkAnalysisArgs) Kind() string      { return "analytics_" + analytics.StepNetwork }
func (NetworkAnalysisArgs) Step() string      { return analytics.StepNetwork }
func (a NetworkAnalysisArgs) When() time.Time { return a.Day }
func (NetworkAnalysisArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{Queue: QueueAnalytics}
}

// stepArgs returns the job args of every analytics step for day
func stepArgs(day time.Time) []river.JobArgs {
	return []river.JobArgs{
		PlatformMetricsArgs{Day: day},
		AgentBehaviorsArgs{Day: day},
		EmergentPatternsArgs{Day: day},
		NetworkAnalysisArgs{Day: day},
	}
}
