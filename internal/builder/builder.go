// Package builder 构建发布任务图：构建 → 签名 → 发布。
//
// 所有节点共享同一个运行上下文（仓库、分支、提交、负责人），
// 依赖关系以 label 表示，提交时由 driver 替换为任务 ID。
package builder

import (
	"errors"
	"fmt"
	"time"

	"github.com/duke-git/lancet/v2/slice"

	"yqhp/release-graph/internal/config"
	"yqhp/release-graph/internal/targets"
	"yqhp/release-graph/internal/taskcluster"
	"yqhp/release-graph/pkg/types"
)

var (
	// ErrUndeclaredArtifact is returned when a task references an upstream
	// artifact that the upstream task does not declare.
	ErrUndeclaredArtifact = errors.New("undeclared upstream artifact")
	// ErrUnknownBuildType is returned when a build type has no signing table entry.
	ErrUnknownBuildType = errors.New("unknown build type")
	// ErrUnknownReleaseType is returned when a release type has no channel.
	ErrUnknownReleaseType = errors.New("unknown release type")
)

// Task kinds.
const (
	KindBuild   = "build"
	KindSigning = "signing"
	KindPush    = "push-apk"
)

// Context is the immutable run configuration shared by every task of a graph.
type Context struct {
	DecisionTaskID string
	RepoURL        string
	Branch         string
	Commit         string
	Owner          string
	Source         string
	// Now returns the creation time of the tasks; time.Now when nil.
	Now func() time.Time
}

// NewContext derives the run context from trigger parameters.
func NewContext(params types.Parameters, cfg config.ReleaseConfig) Context {
	owner := params.Owner
	if owner == "" {
		owner = cfg.Owner
	}
	return Context{
		DecisionTaskID: params.DecisionTaskID,
		RepoURL:        params.HeadRepository,
		Branch:         params.HeadRef,
		Commit:         params.HeadRev,
		Owner:          owner,
		Source:         cfg.Source,
	}
}

func (c Context) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// StageDescriptor is derived once per run and drives every stage.
type StageDescriptor struct {
	ReleaseType string
	BuildType   string
	Track       string
	Channel     string
	Products    []config.ProductConfig
	Signing     SigningTier
	PushWorker  string
	Staging     bool
	// NightlyIndexPath is set for nightly runs; the build task is routed there.
	NightlyIndexPath string
}

// Artifacts returns the logical artifact paths of the products.
func (d StageDescriptor) Artifacts() []string {
	return slice.Map(d.Products, func(_ int, p config.ProductConfig) string {
		return p.Artifact
	})
}

// Builder constructs task graphs.
type Builder struct {
	ctx    Context
	cfg    config.ReleaseConfig
	policy SigningPolicy
}

// New creates a builder.
func New(ctx Context, cfg config.ReleaseConfig) *Builder {
	return &Builder{
		ctx: ctx,
		cfg: cfg,
		policy: SigningPolicy{
			Production: cfg.ProductionSigningBuildTypes,
			Dep:        cfg.DepSigningBuildTypes,
		},
	}
}

// Describe derives the stage descriptor of a run.
func (b *Builder) Describe(params types.Parameters, isStaging bool) (StageDescriptor, error) {
	channel, ok := b.cfg.Channels[params.ReleaseType]
	if !ok {
		return StageDescriptor{}, fmt.Errorf("%w: %q", ErrUnknownReleaseType, params.ReleaseType)
	}

	tier, err := b.policy.Tier(params.Level, channel.BuildType, params.TasksFor)
	if err != nil {
		return StageDescriptor{}, err
	}

	desc := StageDescriptor{
		ReleaseType: params.ReleaseType,
		BuildType:   channel.BuildType,
		Track:       channel.Track,
		Channel:     channel.Channel,
		Products:    append([]config.ProductConfig(nil), b.cfg.Products...),
		Signing:     tier,
		PushWorker:  WorkerPushAPK,
		Staging:     isStaging,
	}
	if isStaging {
		desc.PushWorker = WorkerDepPushAPK
	}
	if params.ReleaseType == types.ReleaseTypeNightly {
		desc.NightlyIndexPath = targets.NightlyIndexPath(b.cfg.TrustDomain, params)
	}
	return desc, nil
}

// ReleaseGraph builds the build → sign → publish graph of a release trigger.
func (b *Builder) ReleaseGraph(params types.Parameters, isStaging bool) (*types.TaskGraph, error) {
	desc, err := b.Describe(params, isStaging)
	if err != nil {
		return nil, err
	}

	build := b.buildTask(desc)
	signing := b.signingTask(desc, params, build)
	push := b.pushTask(desc, signing)

	graph := types.NewTaskGraph()
	for _, node := range []*types.TaskNode{build, signing, push} {
		if err := graph.Add(node); err != nil {
			return nil, err
		}
	}
	if err := CheckArtifacts(graph); err != nil {
		return nil, err
	}
	if err := graph.Validate(); err != nil {
		return nil, err
	}
	return graph, nil
}

func (b *Builder) buildTask(desc StageDescriptor) *types.TaskNode {
	now := b.ctx.now()
	expires := taskcluster.StringDate(now.Add(b.cfg.ArtifactExpires))

	artifacts := make(map[string]types.Artifact, len(desc.Products))
	for _, p := range desc.Products {
		artifacts[p.Artifact] = types.Artifact{Type: "file", Path: p.OutputPath, Expires: expires}
	}

	node := &types.TaskNode{
		Label:        fmt.Sprintf("%s-%s", KindBuild, desc.BuildType),
		Kind:         KindBuild,
		Attributes:   b.attributes(desc, types.PhaseBuild),
		Dependencies: map[string]string{},
		Worker:       types.Worker{Type: b.cfg.BuildWorkerType},
		Artifacts:    artifacts,
		Task: b.dockerTask(
			"(Focus for Android) Build task",
			"Build Focus/Klar from source code.",
			b.cfg.BuildCommand,
			b.cfg.Expires,
			map[string]bool{"chainOfTrust": true},
		),
	}
	if desc.NightlyIndexPath != "" {
		route := "index." + desc.NightlyIndexPath
		node.Routes = []string{route}
		node.Scopes = []string{"queue:route:" + route}
	}
	return node
}

func (b *Builder) signingTask(desc StageDescriptor, params types.Parameters, build *types.TaskNode) *types.TaskNode {
	now := b.ctx.now()
	expires := taskcluster.StringDate(now.Add(b.cfg.ArtifactExpires))
	paths := desc.Artifacts()

	attrs := b.attributes(desc, types.PhasePromote)
	attrs[types.AttrSigned] = true

	// 签名后的产物沿用相同的逻辑路径
	artifacts := make(map[string]types.Artifact, len(paths))
	for _, path := range paths {
		artifacts[path] = types.Artifact{Type: "file", Path: path, Expires: expires}
	}

	node := &types.TaskNode{
		Label:        fmt.Sprintf("%s-%s", KindSigning, desc.BuildType),
		Kind:         KindSigning,
		Attributes:   attrs,
		Dependencies: map[string]string{KindBuild: build.Label},
		Worker: types.Worker{
			Type:        desc.Signing.WorkerType,
			SigningType: desc.Signing.SigningType,
			UpstreamArtifacts: []types.UpstreamArtifact{{
				TaskLabel: build.Label,
				TaskType:  KindBuild,
				Paths:     paths,
				Formats:   []string{b.cfg.SigningFormat},
			}},
		},
		Artifacts: artifacts,
		Scopes: []string{
			fmt.Sprintf("%s:releng:signing:cert:%s", b.cfg.ScopePrefix, desc.Signing.CertName()),
			fmt.Sprintf("%s:releng:signing:format:%s", b.cfg.ScopePrefix, b.cfg.SigningFormat),
		},
		Task: b.baseTask(
			"(Focus for Android) Signing task",
			"Sign release builds of Focus/Klar",
			b.cfg.Expires,
		),
	}

	if desc.Signing.Indexed {
		node.Index = &types.Index{Type: IndexTypeSigning}
		for _, route := range b.indexRoutes(desc, params) {
			node.Routes = append(node.Routes, route)
			node.Scopes = append(node.Scopes, "queue:route:"+route)
		}
	}
	return node
}

func (b *Builder) pushTask(desc StageDescriptor, signing *types.TaskNode) *types.TaskNode {
	productScope := fmt.Sprintf("%s:googleplay:product:%s", b.cfg.ScopePrefix, b.cfg.PushProduct)
	if desc.Staging {
		productScope += ":dep"
	}

	task := b.baseTask(
		"(Focus for Android) Push task",
		"Upload signed release builds of Focus/Klar to Google Play",
		b.cfg.Expires,
	)
	commit := !desc.Staging
	task.Payload.Commit = &commit
	task.Payload.GooglePlayTrack = desc.Track
	task.Payload.Channel = desc.Channel

	return &types.TaskNode{
		Label:        fmt.Sprintf("push-%s", desc.BuildType),
		Kind:         KindPush,
		Attributes:   b.attributes(desc, types.PhaseShip),
		Dependencies: map[string]string{KindSigning: signing.Label},
		Worker: types.Worker{
			Type: desc.PushWorker,
			UpstreamArtifacts: []types.UpstreamArtifact{{
				TaskLabel: signing.Label,
				TaskType:  KindSigning,
				Paths:     desc.Artifacts(),
			}},
		},
		Scopes: []string{productScope},
		Task:   task,
	}
}

func (b *Builder) attributes(desc StageDescriptor, phase string) types.Attributes {
	return types.Attributes{
		types.AttrBuildType:     desc.BuildType,
		types.AttrReleaseType:   desc.ReleaseType,
		types.AttrNightlyTask:   desc.ReleaseType == types.ReleaseTypeNightly,
		types.AttrShippingPhase: phase,
	}
}

// indexRoutes are the publication routes of signed output.
func (b *Builder) indexRoutes(desc StageDescriptor, params types.Parameters) []string {
	prefix := fmt.Sprintf("index.%s.v2.%s.%s", b.cfg.TrustDomain, params.Project, desc.BuildType)
	return []string{
		prefix + ".latest",
		prefix + ".revision." + params.HeadRev,
	}
}

// baseTask is the task definition template shared by every stage.
func (b *Builder) baseTask(name, description string, expires time.Duration) *types.TaskDefinition {
	now := b.ctx.now()
	return &types.TaskDefinition{
		ProvisionerID: b.cfg.ProvisionerID,
		WorkerType:    b.cfg.WorkerType,
		SchedulerID:   b.cfg.SchedulerID,
		TaskGroupID:   b.ctx.DecisionTaskID,
		Requires:      "all-completed",
		Priority:      b.cfg.Priority,
		Retries:       b.cfg.Retries,
		Created:       taskcluster.StringDate(now),
		Deadline:      taskcluster.StringDate(now.Add(b.cfg.Deadline)),
		Expires:       taskcluster.StringDate(now.Add(expires)),
		Tags:          map[string]string{},
		Metadata: types.Metadata{
			Name:        name,
			Description: description,
			Owner:       b.ctx.Owner,
			Source:      b.ctx.Source,
		},
	}
}

// dockerTask is a base task running command in the build image at the
// pinned commit.
func (b *Builder) dockerTask(name, description, command string, expires time.Duration, features map[string]bool) *types.TaskDefinition {
	task := b.baseTask(name, description, expires)
	task.Payload.Image = b.cfg.Image
	task.Payload.MaxRunTime = b.cfg.MaxRunTime
	task.Payload.Command = []string{"/bin/bash", "--login", "-c", b.checkoutCommand(command)}
	task.Payload.Features = map[string]bool{"taskclusterProxy": true}
	for feature, enabled := range features {
		task.Payload.Features[feature] = enabled
	}
	return task
}

// checkoutCommand prefixes command with a checkout of the exact commit so the
// build never follows a moving branch head.
func (b *Builder) checkoutCommand(command string) string {
	return fmt.Sprintf("git fetch %s %s && git config advice.detachedHead false && git checkout %s && %s",
		b.ctx.RepoURL, b.ctx.Branch, b.ctx.Commit, command)
}

// CheckArtifacts verifies that every upstream artifact path referenced by a
// task is declared in the artifact manifest of the referenced task.
func CheckArtifacts(graph *types.TaskGraph) error {
	for _, label := range graph.Labels() {
		node := graph.Tasks[label]
		for _, upstream := range node.Worker.UpstreamArtifacts {
			source, ok := graph.Get(upstream.TaskLabel)
			if !ok {
				return fmt.Errorf("%w: %s references artifacts of unknown task %s",
					ErrUndeclaredArtifact, label, upstream.TaskLabel)
			}
			for _, path := range upstream.Paths {
				if _, declared := source.Artifacts[path]; !declared {
					return fmt.Errorf("%w: %s references %s which %s does not declare",
						ErrUndeclaredArtifact, label, path, upstream.TaskLabel)
				}
			}
		}
	}
	return nil
}
