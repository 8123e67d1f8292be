package dockerswarm

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openfactory/assetstream/pkg/deploy"
)

// hostPortOffsetForGroup must agree with deploy.Base.ServiceURL's local-mode
// port derivation, since both ultimately publish the same worker port.
func TestHostPortOffsetForGroup_MatchesBaseDerivation(t *testing.T) {
	base := deploy.NewBase(deploy.Config{
		Environment:   deploy.EnvironmentLocal,
		GroupPortBase: 5555,
		SwarmNodeHost: "localhost",
	})

	for _, group := range []string{"wc1", "wc2", "assembly-line-a", ""} {
		url := base.ServiceURL(group)
		want := 5555 + hostPortOffsetForGroup(group)
		require.Equal(t, "http://localhost:"+strconv.Itoa(want), url, "group %q", group)
	}
}

func TestHostPortOffsetForGroup_Deterministic(t *testing.T) {
	require.Equal(t, hostPortOffsetForGroup("wc1"), hostPortOffsetForGroup("wc1"))
	require.NotEqual(t, hostPortOffsetForGroup("wc1"), hostPortOffsetForGroup("wc2"))
}
