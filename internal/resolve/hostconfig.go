package resolve

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/miekg/dns"

	"github.com/rosnode/rosnode/pkg/roslog"
)

// DefaultMasterURI is used when neither a CLI override nor
// ROS_MASTER_URI is set, per spec.md §6.
const DefaultMasterURI = "http://localhost:11311/"

// ResolveMasterURI implements the CLI > env > default priority chain
// for the master URI. cliArg/envVar are empty strings when unset; the
// out-of-scope CLI/env collaborator is responsible for extracting them
// from argv/os.Getenv before calling this pure function.
func ResolveMasterURI(cliArg, envVar string) string {
	if cliArg != "" {
		return cliArg
	}
	if envVar != "" {
		return envVar
	}
	return DefaultMasterURI
}

// ResolveHost implements the hostname priority chain from spec.md §6:
// __hostname > __ip > ROS_HOSTNAME > ROS_IP > OS hostname. Each
// argument is empty when its source is unset. The OS hostname lookup
// is the one documented exception to "the core never reads env/argv
// itself" (spec.md §1): it is the final, always-available fallback.
func ResolveHost(cliHostname, cliIP, rosHostnameEnv, rosIPEnv string) (string, error) {
	for _, candidate := range []string{cliHostname, cliIP, rosHostnameEnv, rosIPEnv} {
		if candidate != "" {
			return candidate, nil
		}
	}
	h, err := os.Hostname()
	if err != nil {
		return "", fmt.Errorf("resolve: no host configured and OS hostname lookup failed: %w", err)
	}
	return h, nil
}

// BindPolicy reports the address a slave's XML-RPC and TCPROS
// listeners should bind to, and the host it should advertise to
// peers, per spec.md §4.4: bind to the configured host verbatim if
// it's localhost or a 127.x loopback address, otherwise bind to
// 0.0.0.0 and advertise the configured host.
func BindPolicy(configuredHost string) (bindHost, advertiseHost string) {
	if configuredHost == "localhost" || strings.HasPrefix(configuredHost, "127.") {
		return configuredHost, configuredHost
	}
	return "0.0.0.0", configuredHost
}

// VerifyAdvertiseHost does a best-effort DNS confirmation that host
// resolves to something, for diagnostic surfacing via the slave's
// getBusInfo call. It never blocks startup: a failure is logged and
// swallowed, since a node advertising a hostname that happens not to
// be in DNS (e.g. /etc/hosts-only entries) is still normal operation.
func VerifyAdvertiseHost(host string) {
	if host == "0.0.0.0" || host == "localhost" || strings.HasPrefix(host, "127.") {
		return
	}

	c := new(dns.Client)
	c.Timeout = 2 * time.Second

	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(host), dns.TypeA)

	conf, err := dns.ClientConfigFromFile("/etc/resolv.conf")
	if err != nil || len(conf.Servers) == 0 {
		roslog.Debug("resolve: no local resolver config, skipping advertise-host verification for %s", host)
		return
	}

	server := conf.Servers[0] + ":" + conf.Port
	resp, _, err := c.Exchange(m, server)
	if err != nil || resp == nil || len(resp.Answer) == 0 {
		roslog.Warn("resolve: advertise host %q did not resolve via DNS (continuing anyway): %v", host, err)
		return
	}

	roslog.Debug("resolve: advertise host %q confirmed via DNS", host)
}
