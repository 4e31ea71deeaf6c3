package netutil

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFirstLANAddress(t *testing.T) {
	addrs := []net.Addr{
		&net.IPNet{IP: net.ParseIP("127.0.0.1"), Mask: net.CIDRMask(8, 32)},
		&net.IPNet{IP: net.ParseIP("fe80::1"), Mask: net.CIDRMask(64, 128)},
		&net.IPNet{IP: net.ParseIP("2001:db8::5"), Mask: net.CIDRMask(64, 128)},
		&net.IPNet{IP: net.ParseIP("192.168.1.20"), Mask: net.CIDRMask(24, 32)},
		&net.IPNet{IP: net.ParseIP("10.0.0.3"), Mask: net.CIDRMask(8, 32)},
	}

	ip, err := firstLANAddress(addrs)
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.20", ip)
}

func TestFirstLANAddressNone(t *testing.T) {
	_, err := firstLANAddress([]net.Addr{
		&net.IPNet{IP: net.ParseIP("127.0.0.1"), Mask: net.CIDRMask(8, 32)},
	})
	assert.ErrorIs(t, err, ErrNoAddress)
}

func TestListenEphemeralPort(t *testing.T) {
	ln, handle, err := Listen("127.0.0.1:0", "")
	require.NoError(t, err)
	defer ln.Close()

	assert.Equal(t, "127.0.0.1", handle.BoundAddress)
	assert.NotZero(t, handle.BoundPort)
	assert.Equal(t, ln.Addr().(*net.TCPAddr).Port, handle.BoundPort)
}

func TestListenAdvertiseOverride(t *testing.T) {
	ln, handle, err := Listen("127.0.0.1:0", "share.local")
	require.NoError(t, err)
	defer ln.Close()

	assert.Equal(t, "share.local", handle.BoundAddress)
	assert.Contains(t, handle.URL(), "http://share.local:")
}
