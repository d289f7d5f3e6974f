package builder

import (
	"time"

	"yqhp/release-graph/internal/taskcluster"
	"yqhp/release-graph/pkg/types"
)

// Labels of the push-to-master pipeline.
const (
	LabelMasterBuild    = "master-build"
	LabelUnitTests      = "unit-tests"
	LabelCodeQuality    = "code-quality"
	LabelUITests        = "ui-tests"
	LabelPreviewRelease = "preview-release"

	// PreviewBuildsRoute indexes the latest preview release.
	PreviewBuildsRoute = "index.project.focus.android.preview-builds"

	pushArtifactExpiry = 7 * 24 * time.Hour
	adjustTokenStub    = `echo "--" > .adjust_token`
)

// pushStage describes one task of the push-to-master pipeline.
type pushStage struct {
	label        string
	name         string
	description  string
	command      string
	dependencies []string
	scopes       []string
	routes       []string
	artifactPath string
}

func (b *Builder) pushStages() []pushStage {
	return []pushStage{
		{
			label:       LabelMasterBuild,
			name:        "(Focus for Android) Build",
			description: "Build Focus/Klar for Android from source code.",
			command: adjustTokenStub +
				" && python tools/l10n/check_translations.py" +
				" && ./gradlew --no-daemon clean assemble",
		},
		{
			label:        LabelUnitTests,
			name:         "(Focus for Android) Unit tests",
			description:  "Run unit tests for Focus/Klar for Android.",
			command:      adjustTokenStub + " && ./gradlew --no-daemon clean test",
			dependencies: []string{LabelMasterBuild},
		},
		{
			label:        LabelCodeQuality,
			name:         "(Focus for Android) Code quality",
			description:  "Run code quality tools on Focus/Klar for Android code base.",
			command:      adjustTokenStub + " && ./gradlew --no-daemon clean detektCheck ktlint lint pmd checkstyle findbugs",
			dependencies: []string{LabelMasterBuild},
		},
		{
			label:       LabelUITests,
			name:        "(Focus for Android) UI tests",
			description: "Run UI tests for Focus/Klar for Android.",
			command: adjustTokenStub +
				" && ./gradlew --no-daemon clean assembleFocusWebviewDebug assembleFocusWebviewDebugAndroidTest" +
				" && tools/taskcluster/execute-firebase-test.sh",
			dependencies: []string{LabelUnitTests, LabelCodeQuality},
			scopes:       []string{"secrets:get:project/focus/firebase"},
			artifactPath: "/opt/focus-android/test_artifacts",
		},
		{
			label:       LabelPreviewRelease,
			name:        "(Focus for Android) Preview release",
			description: "Build preview versions for testing Focus/Klar for Android.",
			command: adjustTokenStub +
				" && ./gradlew --no-daemon clean assembleBeta" +
				" && python tools/taskcluster/sign-preview-builds.py" +
				` && touch /opt/focus-android/builds/` + "`date +\"%Y-%m-%d-%H-%M\"`" +
				" && touch /opt/focus-android/builds/" + b.ctx.Commit,
			dependencies: []string{LabelUITests},
			scopes: []string{
				"secrets:get:project/focus/preview-key-store",
				"queue:route:" + PreviewBuildsRoute,
			},
			routes:       []string{PreviewBuildsRoute},
			artifactPath: "/opt/focus-android/builds",
		},
	}
}

// PushGraph builds the pipeline scheduled for every push to master:
// build → {unit tests, code quality} → UI tests → preview release.
func (b *Builder) PushGraph() (*types.TaskGraph, error) {
	now := b.ctx.now()
	graph := types.NewTaskGraph()

	for _, stage := range b.pushStages() {
		deps := make(map[string]string, len(stage.dependencies))
		for _, dep := range stage.dependencies {
			deps[dep] = dep
		}

		node := &types.TaskNode{
			Label:        stage.label,
			Kind:         "test",
			Attributes:   types.Attributes{},
			Dependencies: deps,
			Worker:       types.Worker{Type: b.cfg.WorkerType},
			Routes:       stage.routes,
			Scopes:       stage.scopes,
			Task:         b.dockerTask(stage.name, stage.description, stage.command, pushArtifactExpiry, nil),
		}
		if stage.artifactPath != "" {
			node.Artifacts = map[string]types.Artifact{
				"public": {
					Type:    "directory",
					Path:    stage.artifactPath,
					Expires: taskcluster.StringDate(now.Add(pushArtifactExpiry)),
				},
			}
		}
		if stage.label == LabelMasterBuild {
			node.Kind = KindBuild
		}

		if err := graph.Add(node); err != nil {
			return nil, err
		}
	}

	if err := graph.Validate(); err != nil {
		return nil, err
	}
	return graph, nil
}
