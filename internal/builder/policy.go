package builder

import (
	"fmt"

	"github.com/duke-git/lancet/v2/slice"

	"yqhp/release-graph/pkg/types"
)

// Signing worker pools and signing types.
const (
	WorkerSigning    = "signing"
	WorkerDepSigning = "dep-signing"

	SigningTypeProduction = "production-signing"
	SigningTypeDep        = "dep-signing"

	WorkerPushAPK    = "push-apk"
	WorkerDepPushAPK = "dep-push-apk"

	// IndexTypeSigning marks signing tasks whose output is published in the index.
	IndexTypeSigning = "signing"
)

// ProductionLevel is the only trust level allowed to production sign.
const ProductionLevel = 3

// SigningTier is the outcome of the signing policy for one run.
type SigningTier struct {
	WorkerType  string
	SigningType string
	// Indexed is true when the signed output gets latest/revision index routes.
	Indexed bool
}

// Production reports whether the tier uses production certificates.
func (t SigningTier) Production() bool {
	return t.SigningType == SigningTypeProduction
}

// CertName is the signing certificate the tier's scopes name.
func (t SigningTier) CertName() string {
	if t.Production() {
		return "release-signing"
	}
	return "dep-signing"
}

// SigningPolicy decides the signing tier from (level, build type, trigger origin).
type SigningPolicy struct {
	// Production lists build types that may be production signed.
	Production []string
	// Dep lists build types that are signed, but only with dep certificates.
	Dep []string
}

// Known reports whether the signing table has an entry for buildType.
func (p SigningPolicy) Known(buildType string) bool {
	return slice.Contain(p.Production, buildType) || slice.Contain(p.Dep, buildType)
}

// Tier returns the signing tier. Production signing requires level 3, a build
// type in the production list and a shipping trigger (cron, github-release or
// action); anything else is dep signing. A build type missing from both lists
// is a configuration defect.
func (p SigningPolicy) Tier(level int, buildType string, tasksFor types.TasksFor) (SigningTier, error) {
	if !p.Known(buildType) {
		return SigningTier{}, fmt.Errorf("%w: %s", ErrUnknownBuildType, buildType)
	}

	tier := SigningTier{WorkerType: WorkerDepSigning, SigningType: SigningTypeDep}
	if level == ProductionLevel && tasksFor.IsShipping() && slice.Contain(p.Production, buildType) {
		tier.WorkerType = WorkerSigning
		tier.SigningType = SigningTypeProduction
	}
	tier.Indexed = tasksFor.IsShipping()
	return tier, nil
}
