// Package discovery registers the gateway with Consul so the edge proxy can
// find healthy instances. Registration is optional; with no Consul address
// configured the gateway runs standalone.
package discovery

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"
	consulapi "github.com/hashicorp/consul/api"
)

type Registration struct {
	client *consulapi.Client
	id     string
}

// Register announces the service and a /healthz HTTP check. The returned
// Registration must be Deregistered on shutdown.
func Register(addr, serviceName, serviceID, host string, port string) (*Registration, error) {
	cfg := consulapi.DefaultConfig()
	cfg.Address = addr
	client, err := consulapi.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("consul client: %w", err)
	}
	p, err := strconv.Atoi(port)
	if err != nil {
		return nil, fmt.Errorf("service port %q: %w", port, err)
	}
	if serviceID == "" {
		serviceID = serviceName + "-" + uuid.NewString()
	}
	reg := &consulapi.AgentServiceRegistration{
		ID:      serviceID,
		Name:    serviceName,
		Address: host,
		Port:    p,
		Check: &consulapi.AgentServiceCheck{
			HTTP:                           fmt.Sprintf("http://%s:%d/healthz", host, p),
			Interval:                       "10s",
			Timeout:                        "2s",
			DeregisterCriticalServiceAfter: "1m",
		},
	}
	if err := client.Agent().ServiceRegister(reg); err != nil {
		return nil, fmt.Errorf("consul register: %w", err)
	}
	return &Registration{client: client, id: serviceID}, nil
}

func (r *Registration) Deregister() error {
	return r.client.Agent().ServiceDeregister(r.id)
}
