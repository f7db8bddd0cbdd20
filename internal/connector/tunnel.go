package connector

import (
	"context"
	"fmt"
	"net"
	"os"
	"slices"
	"sync"

	"github.com/go-sql-driver/mysql"
	"github.com/vitebski/interdb-migrator/pkg/models"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// The mysql driver keeps dial networks forever, so one network is
// registered per SSH endpoint and dials through whichever tunnel to that
// endpoint is open.
var (
	tunnelsMu  sync.Mutex
	registered = map[string]bool{}
	tunnels    = map[string][]*Tunnel{}
)

// Tunnel forwards database connections through an SSH jump host
type Tunnel struct {
	client  *ssh.Client
	network string
}

// networkName names the mysql dial network of an SSH endpoint
func networkName(cfg models.SSHConfig) string {
	port := cfg.Port
	if port == 0 {
		port = 22
	}
	return fmt.Sprintf("mysql+ssh:%s@%s:%d", cfg.User, cfg.Host, port)
}

// OpenTunnel dials the SSH host described by cfg
func OpenTunnel(cfg models.SSHConfig) (*Tunnel, error) {
	key, err := os.ReadFile(cfg.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read private key: %w", err)
	}

	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("unable to parse private key: %w", err)
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if cfg.KnownHostsPath != "" {
		hostKeyCallback, err = knownhosts.New(cfg.KnownHostsPath)
		if err != nil {
			return nil, fmt.Errorf("unable to load known hosts: %w", err)
		}
	}

	sshConfig := &ssh.ClientConfig{
		User: cfg.User,
		Auth: []ssh.AuthMethod{
			ssh.PublicKeys(signer),
		},
		HostKeyCallback: hostKeyCallback,
	}

	port := cfg.Port
	if port == 0 {
		port = 22
	}
	client, err := ssh.Dial("tcp", fmt.Sprintf("%s:%d", cfg.Host, port), sshConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to SSH server: %w", err)
	}

	return &Tunnel{client: client, network: networkName(cfg)}, nil
}

// DialContext opens a connection to addr from the SSH host
func (t *Tunnel) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	return t.client.DialContext(ctx, network, addr)
}

// RegisterMySQL routes the endpoint's mysql dial network through this
// tunnel and returns the network name for use as mysql.Config.Net
func (t *Tunnel) RegisterMySQL() string {
	tunnelsMu.Lock()
	defer tunnelsMu.Unlock()
	if !registered[t.network] {
		name := t.network
		mysql.RegisterDialContext(name, func(ctx context.Context, addr string) (net.Conn, error) {
			return dialTunnel(ctx, name, addr)
		})
		registered[name] = true
	}
	if !slices.Contains(tunnels[t.network], t) {
		tunnels[t.network] = append(tunnels[t.network], t)
	}
	return t.network
}

func dialTunnel(ctx context.Context, network, addr string) (net.Conn, error) {
	tunnelsMu.Lock()
	open := tunnels[network]
	var t *Tunnel
	if len(open) > 0 {
		t = open[len(open)-1]
	}
	tunnelsMu.Unlock()
	if t == nil {
		return nil, fmt.Errorf("no open SSH tunnel for %s", network)
	}
	return t.DialContext(ctx, "tcp", addr)
}

// Close unregisters the tunnel and shuts the SSH connection down
func (t *Tunnel) Close() error {
	tunnelsMu.Lock()
	tunnels[t.network] = slices.DeleteFunc(tunnels[t.network], func(o *Tunnel) bool { return o == t })
	tunnelsMu.Unlock()
	if t.client == nil {
		return nil
	}
	return t.client.Close()
}
