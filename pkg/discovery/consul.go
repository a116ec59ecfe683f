package discovery

import (
	"fmt"
	"net"
	"os"

	"github.com/hashicorp/consul/api"
	"go.uber.org/zap"
)

// ConsulRegistry Consul 服务注册客户端
type ConsulRegistry struct {
	client *api.Client
	config *ConsulConfig
	logger *zap.Logger
}

// ConsulConfig Consul 配置
type ConsulConfig struct {
	Address string            // Consul 地址，例如: "localhost:8500"
	Scheme  string            // http 或 https
	Token   string            // ACL Token (可选)
	Tags    []string          // 服务标签
	Meta    map[string]string // 服务元数据
}

// ServiceRegistration 服务注册信息
type ServiceRegistration struct {
	ID                             string            // 服务实例ID (唯一)
	Name                           string            // 服务名称
	Address                        string            // 服务地址
	Port                           int               // 服务端口
	Tags                           []string          // 服务标签
	Meta                           map[string]string // 元数据
	HealthCheckPath                string            // 健康检查路径 (HTTP)
	HealthCheckInterval            string            // 健康检查间隔 (e.g., "10s")
	HealthCheckTimeout             string            // 健康检查超时 (e.g., "5s")
	DeregisterCriticalServiceAfter string            // 注销临界服务时间 (e.g., "1m")
}

// NewConsulRegistry 创建 Consul 注册客户端
func NewConsulRegistry(config *ConsulConfig, logger *zap.Logger) (*ConsulRegistry, error) {
	consulConfig := api.DefaultConfig()
	consulConfig.Address = config.Address
	if config.Scheme != "" {
		consulConfig.Scheme = config.Scheme
	}
	if config.Token != "" {
		consulConfig.Token = config.Token
	}

	client, err := api.NewClient(consulConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create consul client: %w", err)
	}

	return &ConsulRegistry{
		client: client,
		config: config,
		logger: logger,
	}, nil
}

// NewServiceRegistration 为本实例生成注册信息，带 HTTP /health 检查
func NewServiceRegistration(name string, port int) (*ServiceRegistration, error) {
	host, err := localIP()
	if err != nil {
		return nil, err
	}
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	return &ServiceRegistration{
		ID:                             fmt.Sprintf("%s-%s-%d", name, hostname, port),
		Name:                           name,
		Address:                        host,
		Port:                           port,
		Tags:                           []string{"http"},
		HealthCheckPath:                "/health",
		HealthCheckInterval:            "10s",
		HealthCheckTimeout:             "5s",
		DeregisterCriticalServiceAfter: "1m",
	}, nil
}

// Register 注册服务
func (r *ConsulRegistry) Register(reg *ServiceRegistration) error {
	registration := &api.AgentServiceRegistration{
		ID:      reg.ID,
		Name:    reg.Name,
		Address: reg.Address,
		Port:    reg.Port,
		Tags:    mergeTags(r.config.Tags, reg.Tags),
		Meta:    mergeMeta(r.config.Meta, reg.Meta),
	}

	// 添加健康检查
	if reg.HealthCheckPath != "" {
		registration.Check = &api.AgentServiceCheck{
			HTTP:                           fmt.Sprintf("http://%s%s", net.JoinHostPort(reg.Address, fmt.Sprint(reg.Port)), reg.HealthCheckPath),
			Interval:                       reg.HealthCheckInterval,
			Timeout:                        reg.HealthCheckTimeout,
			DeregisterCriticalServiceAfter: reg.DeregisterCriticalServiceAfter,
		}
	}

	if err := r.client.Agent().ServiceRegister(registration); err != nil {
		return fmt.Errorf("failed to register service: %w", err)
	}

	r.logger.Info("Registered service in consul",
		zap.String("id", reg.ID),
		zap.String("address", reg.Address),
		zap.Int("port", reg.Port),
	)
	return nil
}

// Deregister 注销服务
func (r *ConsulRegistry) Deregister(serviceID string) error {
	if err := r.client.Agent().ServiceDeregister(serviceID); err != nil {
		return fmt.Errorf("failed to deregister service: %w", err)
	}

	r.logger.Info("Deregistered service from consul", zap.String("id", serviceID))
	return nil
}

func mergeTags(tags1, tags2 []string) []string {
	merged := make([]string, 0, len(tags1)+len(tags2))
	merged = append(merged, tags1...)
	merged = append(merged, tags2...)
	return merged
}

func mergeMeta(meta1, meta2 map[string]string) map[string]string {
	merged := make(map[string]string)
	for k, v := range meta1 {
		merged[k] = v
	}
	for k, v := range meta2 {
		merged[k] = v
	}
	return merged
}

// localIP 获取本机 IP 地址，HOST_IP 优先
func localIP() (string, error) {
	if ip := os.Getenv("HOST_IP"); ip != "" {
		return ip, nil
	}

	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "", err
	}

	for _, addr := range addrs {
		if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
			if ipnet.IP.To4() != nil {
				return ipnet.IP.String(), nil
			}
		}
	}

	return "", fmt.Errorf("no valid IP address found")
}
