package lgpo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/winops/lgpo/internal/admx"
	"github.com/winops/lgpo/internal/catalog"
)

func TestResolveStaticNames(t *testing.T) {
	env := newTestEnv(t, false)
	policies := catalog.Builtin().ForClass(true)
	bundle := env.engine.bundle()

	res, err := resolvePolicy(policies, bundle, admx.Machine, "lockoutduration")
	require.NoError(t, err)
	require.NotNil(t, res.Static)
	assert.Equal(t, "LockoutDuration", res.Static.Name)

	res, err = resolvePolicy(policies, bundle, admx.Machine, "ACCOUNT LOCKOUT DURATION")
	require.NoError(t, err)
	require.NotNil(t, res.Static)
	assert.Equal(t, "LockoutDuration", res.Static.Name)
	assert.Contains(t, res.Aliases, "Account lockout duration")
}

func TestResolveAdmxByQualifiedID(t *testing.T) {
	env := newTestEnv(t, false)
	bundle := env.engine.bundle()

	res, err := resolvePolicy(catalog.Builtin().ForClass(true), bundle, admx.Machine,
		"Contoso.Policies.Legacy:DisableTelemetry")
	require.NoError(t, err)
	require.NotNil(t, res.Admx)
	assert.Equal(t, "Telemetry", res.Admx.Raw.RegistryValue)
	assert.Contains(t, res.Aliases, `Legacy Components\Turn off telemetry`)
}

func TestResolveAdmxBareIDIsAmbiguous(t *testing.T) {
	env := newTestEnv(t, false)

	_, err := resolvePolicy(catalog.Builtin().ForClass(true), env.engine.bundle(), admx.Machine,
		"DisableTelemetry")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `Data Collection\Turn off telemetry`)
	assert.Contains(t, err.Error(), `Legacy Components\Turn off telemetry`)
}

func TestResolveAdmxDisplayTextWithPath(t *testing.T) {
	env := newTestEnv(t, false)
	policies := catalog.Builtin().ForClass(true)
	bundle := env.engine.bundle()

	// both template files use the same caption
	_, err := resolvePolicy(policies, bundle, admx.Machine, "Turn off telemetry")
	require.Error(t, err)

	res, err := resolvePolicy(policies, bundle, admx.Machine, `Legacy Components\Turn off telemetry`)
	require.NoError(t, err)
	require.NotNil(t, res.Admx)
	assert.Equal(t, "Contoso.Policies.Legacy:DisableTelemetry", res.Admx.UniqueID)

	res, err = resolvePolicy(policies, bundle, admx.Machine, `data collection\turn off telemetry`)
	require.NoError(t, err)
	require.NotNil(t, res.Admx)
	assert.Equal(t, "Contoso.Policies.Telemetry:DisableTelemetry", res.Admx.UniqueID)
}

func TestResolveDisplayTextPrefersExactPath(t *testing.T) {
	env := newTestEnv(t, false)
	policies := catalog.Builtin().ForClass(true)
	bundle := env.engine.bundle()

	// "Data Collection" is both a root category and a nested one; the
	// short path picks the policy whose whole breadcrumb it names
	res, err := resolvePolicy(policies, bundle, admx.Machine, `Data Collection\Turn off telemetry`)
	require.NoError(t, err)
	require.NotNil(t, res.Admx)
	assert.Equal(t, "Contoso.Policies.Telemetry:DisableTelemetry", res.Admx.UniqueID)

	res, err = resolvePolicy(policies, bundle, admx.Machine, `Legacy Components\Data Collection\Turn off telemetry`)
	require.NoError(t, err)
	require.NotNil(t, res.Admx)
	assert.Equal(t, "Contoso.Policies.Nested:DisableTelemetry", res.Admx.UniqueID)
}

func TestResolveUnknownPolicy(t *testing.T) {
	env := newTestEnv(t, false)

	_, err := resolvePolicy(catalog.Builtin().ForClass(true), env.engine.bundle(), admx.Machine,
		"No Such Policy")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestResolveClassScoping(t *testing.T) {
	env := newTestEnv(t, false)

	// machine-only template policy is invisible to the user class
	_, err := resolvePolicy(catalog.Builtin().ForClass(false), env.engine.bundle(), admx.User,
		"Contoso.Policies.Legacy:DisableTelemetry")
	require.Error(t, err)
}
