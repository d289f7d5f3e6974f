package builder

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yqhp/release-graph/internal/config"
	"yqhp/release-graph/pkg/types"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func testContext() Context {
	return Context{
		DecisionTaskID: "decision-task",
		RepoURL:        "https://github.com/mozilla-mobile/focus-android",
		Branch:         "main",
		Commit:         "abc123",
		Owner:          "releng@example.com",
		Source:         "https://example.com/source",
		Now:            func() time.Time { return fixedNow },
	}
}

func nightlyParams() types.Parameters {
	return types.Parameters{
		ReleaseType:    types.ReleaseTypeNightly,
		Project:        "focus-android",
		HeadRepository: "https://github.com/mozilla-mobile/focus-android",
		HeadRef:        "main",
		HeadRev:        "abc123",
		Level:          1,
		TasksFor:       types.TasksForCron,
		DecisionTaskID: "decision-task",
	}
}

func newBuilder() *Builder {
	return New(testContext(), config.DefaultConfig().Release)
}

func TestReleaseGraphShape(t *testing.T) {
	graph, err := newBuilder().ReleaseGraph(nightlyParams(), false)
	require.NoError(t, err)

	order, err := graph.TopologicalOrder()
	require.NoError(t, err)
	assert.Equal(t, []string{"build-nightly", "signing-nightly", "push-nightly"}, order)

	build, _ := graph.Get("build-nightly")
	signing, _ := graph.Get("signing-nightly")
	push, _ := graph.Get("push-nightly")

	assert.Empty(t, build.Dependencies)
	assert.Equal(t, []string{"build-nightly"}, signing.DependencyLabels())
	assert.Equal(t, []string{"signing-nightly"}, push.DependencyLabels())
}

func TestBuildTask(t *testing.T) {
	graph, err := newBuilder().ReleaseGraph(nightlyParams(), false)
	require.NoError(t, err)
	build, _ := graph.Get("build-nightly")

	assert.Equal(t, "gecko-focus", build.Worker.Type)
	assert.Equal(t, "nightly", build.Attributes.String(types.AttrBuildType))
	assert.True(t, build.Attributes.Bool(types.AttrNightlyTask))
	assert.Equal(t, types.PhaseBuild, build.Attributes.String(types.AttrShippingPhase))

	require.Len(t, build.Artifacts, 2)
	focus := build.Artifacts["public/focus.apk"]
	assert.Equal(t, "file", focus.Type)
	assert.Contains(t, focus.Path, "app-focus-webview-universal-release-unsigned.apk")
	assert.Equal(t, "2024-05-31T12:00:00.000Z", focus.Expires)

	cmd := build.Task.Payload.Command
	require.Len(t, cmd, 4)
	assert.Equal(t, []string{"/bin/bash", "--login", "-c"}, cmd[:3])
	assert.True(t, strings.HasPrefix(cmd[3],
		"git fetch https://github.com/mozilla-mobile/focus-android main && git config advice.detachedHead false && git checkout abc123 && "))
	assert.True(t, build.Task.Payload.Features["chainOfTrust"])
	assert.True(t, build.Task.Payload.Features["taskclusterProxy"])

	route := "index.mobile.v2.focus-android.branch.main.revision.abc123.taskgraph.decision-nightly"
	assert.Equal(t, []string{route}, build.Routes)
	assert.Equal(t, []string{"queue:route:" + route}, build.Scopes)

	def := build.Task
	assert.Equal(t, "decision-task", def.TaskGroupID)
	assert.Equal(t, "2024-05-01T12:00:00.000Z", def.Created)
	assert.Equal(t, "2024-05-02T12:00:00.000Z", def.Deadline)
	assert.Equal(t, 5, def.Retries)
	assert.Equal(t, "lowest", def.Priority)
	assert.Equal(t, 7200, def.Payload.MaxRunTime)
	assert.Equal(t, "releng@example.com", def.Metadata.Owner)
}

func TestBetaBuildHasNoNightlyRoute(t *testing.T) {
	params := nightlyParams()
	params.ReleaseType = types.ReleaseTypeBeta
	graph, err := newBuilder().ReleaseGraph(params, false)
	require.NoError(t, err)

	build, ok := graph.Get("build-beta")
	require.True(t, ok)
	assert.Empty(t, build.Routes)
	assert.False(t, build.Attributes.Bool(types.AttrNightlyTask))
}

func TestSigningTaskDepSigning(t *testing.T) {
	graph, err := newBuilder().ReleaseGraph(nightlyParams(), false)
	require.NoError(t, err)
	signing, _ := graph.Get("signing-nightly")

	assert.Equal(t, WorkerDepSigning, signing.Worker.Type)
	assert.Equal(t, SigningTypeDep, signing.Worker.SigningType)
	assert.True(t, signing.Attributes.Bool(types.AttrSigned))

	require.Len(t, signing.Worker.UpstreamArtifacts, 1)
	upstream := signing.Worker.UpstreamArtifacts[0]
	assert.Equal(t, "build-nightly", upstream.TaskLabel)
	assert.Equal(t, []string{"public/focus.apk", "public/klar.apk"}, upstream.Paths)
	assert.Equal(t, []string{"focus-jar"}, upstream.Formats)

	assert.Contains(t, signing.Scopes, "project:mobile:focus:releng:signing:cert:dep-signing")
	assert.Contains(t, signing.Scopes, "project:mobile:focus:releng:signing:format:focus-jar")

	// cron 触发的已知构建类型会被索引
	require.NotNil(t, signing.Index)
	assert.Equal(t, IndexTypeSigning, signing.Index.Type)
	assert.Equal(t, []string{
		"index.mobile.v2.focus-android.nightly.latest",
		"index.mobile.v2.focus-android.nightly.revision.abc123",
	}, signing.Routes)
	assert.Contains(t, signing.Scopes, "queue:route:index.mobile.v2.focus-android.nightly.latest")
}

func TestSigningTaskProduction(t *testing.T) {
	params := nightlyParams()
	params.Level = 3
	graph, err := newBuilder().ReleaseGraph(params, false)
	require.NoError(t, err)
	signing, _ := graph.Get("signing-nightly")

	assert.Equal(t, WorkerSigning, signing.Worker.Type)
	assert.Equal(t, SigningTypeProduction, signing.Worker.SigningType)
	assert.Contains(t, signing.Scopes, "project:mobile:focus:releng:signing:cert:release-signing")
}

func TestSigningTaskNotIndexedForPushTrigger(t *testing.T) {
	params := nightlyParams()
	params.Level = 3
	params.TasksFor = types.TasksForGithubPush
	graph, err := newBuilder().ReleaseGraph(params, false)
	require.NoError(t, err)
	signing, _ := graph.Get("signing-nightly")

	assert.Equal(t, SigningTypeDep, signing.Worker.SigningType)
	assert.Nil(t, signing.Index)
	assert.Empty(t, signing.Routes)
}

func TestPushTask(t *testing.T) {
	graph, err := newBuilder().ReleaseGraph(nightlyParams(), false)
	require.NoError(t, err)
	push, _ := graph.Get("push-nightly")

	assert.Equal(t, WorkerPushAPK, push.Worker.Type)
	assert.Equal(t, []string{"project:mobile:focus:googleplay:product:focus"}, push.Scopes)
	require.NotNil(t, push.Task.Payload.Commit)
	assert.True(t, *push.Task.Payload.Commit)
	assert.Equal(t, "nightly", push.Task.Payload.GooglePlayTrack)
	assert.Equal(t, types.PhaseShip, push.Attributes.String(types.AttrShippingPhase))

	require.Len(t, push.Worker.UpstreamArtifacts, 1)
	assert.Equal(t, "signing-nightly", push.Worker.UpstreamArtifacts[0].TaskLabel)
}

func TestPushTaskStaging(t *testing.T) {
	graph, err := newBuilder().ReleaseGraph(nightlyParams(), true)
	require.NoError(t, err)
	push, _ := graph.Get("push-nightly")

	assert.Equal(t, WorkerDepPushAPK, push.Worker.Type)
	assert.Equal(t, []string{"project:mobile:focus:googleplay:product:focus:dep"}, push.Scopes)
	require.NotNil(t, push.Task.Payload.Commit)
	assert.False(t, *push.Task.Payload.Commit)
}

func TestReleaseTrackMapping(t *testing.T) {
	params := nightlyParams()
	params.ReleaseType = types.ReleaseTypeRelease
	params.Level = 3
	params.TasksFor = types.TasksForGithubRelease

	desc, err := newBuilder().Describe(params, false)
	require.NoError(t, err)
	assert.Equal(t, "focus-release", desc.BuildType)
	assert.Equal(t, "production", desc.Track)
	assert.True(t, desc.Signing.Production())
	assert.Empty(t, desc.NightlyIndexPath)
}

func TestUnknownReleaseType(t *testing.T) {
	params := nightlyParams()
	params.ReleaseType = "aurora"
	_, err := newBuilder().ReleaseGraph(params, false)
	assert.ErrorIs(t, err, ErrUnknownReleaseType)
}

func TestUnknownBuildType(t *testing.T) {
	cfg := config.DefaultConfig().Release
	cfg.Channels = map[string]config.ChannelConfig{
		"nightly": {BuildType: "mystery", Track: "nightly"},
	}
	_, err := New(testContext(), cfg).ReleaseGraph(nightlyParams(), false)
	assert.ErrorIs(t, err, ErrUnknownBuildType)
}

func TestCheckArtifactsRejectsUndeclaredPath(t *testing.T) {
	graph := types.NewTaskGraph()
	require.NoError(t, graph.Add(&types.TaskNode{
		Label:     "build",
		Artifacts: map[string]types.Artifact{"public/focus.apk": {Type: "file"}},
	}))
	require.NoError(t, graph.Add(&types.TaskNode{
		Label:        "sign",
		Dependencies: map[string]string{"build": "build"},
		Worker: types.Worker{UpstreamArtifacts: []types.UpstreamArtifact{{
			TaskLabel: "build",
			Paths:     []string{"public/focus.apk", "public/other.apk"},
		}}},
	}))

	err := CheckArtifacts(graph)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUndeclaredArtifact))
	assert.Contains(t, err.Error(), "public/other.apk")
}

func TestCheckArtifactsUnknownUpstream(t *testing.T) {
	graph := types.NewTaskGraph()
	require.NoError(t, graph.Add(&types.TaskNode{
		Label:  "sign",
		Worker: types.Worker{UpstreamArtifacts: []types.UpstreamArtifact{{TaskLabel: "ghost", Paths: []string{"x"}}}},
	}))
	assert.ErrorIs(t, CheckArtifacts(graph), ErrUndeclaredArtifact)
}

func TestResolvedDefinitionsEmbedUpstreamIDs(t *testing.T) {
	graph, err := newBuilder().ReleaseGraph(nightlyParams(), false)
	require.NoError(t, err)

	ids := map[string]string{
		"build-nightly":   "BUILD",
		"signing-nightly": "SIGN",
		"push-nightly":    "PUSH",
	}

	signing, _ := graph.Get("signing-nightly")
	def, err := signing.Resolve(ids)
	require.NoError(t, err)
	assert.Equal(t, []string{"BUILD"}, def.Dependencies)
	assert.Equal(t, WorkerDepSigning, def.WorkerType)
	require.Len(t, def.Payload.UpstreamArtifacts, 1)
	assert.Equal(t, "BUILD", def.Payload.UpstreamArtifacts[0].TaskID)

	push, _ := graph.Get("push-nightly")
	def, err = push.Resolve(ids)
	require.NoError(t, err)
	assert.Equal(t, []string{"SIGN"}, def.Dependencies)
	assert.Equal(t, "SIGN", def.Payload.UpstreamArtifacts[0].TaskID)
}

func TestNewContext(t *testing.T) {
	cfg := config.DefaultConfig().Release
	ctx := NewContext(nightlyParams(), cfg)
	assert.Equal(t, "decision-task", ctx.DecisionTaskID)
	assert.Equal(t, "abc123", ctx.Commit)
	assert.Equal(t, cfg.Owner, ctx.Owner)

	params := nightlyParams()
	params.Owner = "someone@example.com"
	assert.Equal(t, "someone@example.com", NewContext(params, cfg).Owner)
}

func TestPushGraph(t *testing.T) {
	graph, err := newBuilder().PushGraph()
	require.NoError(t, err)

	order, err := graph.TopologicalOrder()
	require.NoError(t, err)
	assert.Equal(t, []string{
		LabelMasterBuild, LabelCodeQuality, LabelUnitTests, LabelUITests, LabelPreviewRelease,
	}, order)

	ui, _ := graph.Get(LabelUITests)
	assert.Equal(t, []string{LabelCodeQuality, LabelUnitTests}, ui.DependencyLabels())
	assert.Equal(t, "directory", ui.Artifacts["public"].Type)

	release, _ := graph.Get(LabelPreviewRelease)
	assert.Equal(t, []string{PreviewBuildsRoute}, release.Routes)
	assert.Contains(t, release.Scopes, "queue:route:"+PreviewBuildsRoute)
	assert.Contains(t, release.Task.Payload.Command[3], "touch /opt/focus-android/builds/abc123")
	assert.Equal(t, "2024-05-08T12:00:00.000Z", release.Task.Expires)
}
