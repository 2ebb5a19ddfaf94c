// internal/pkg/nacos/config_client.go
package nacos

import (
	"github.com/nacos-group/nacos-sdk-go/v2/clients"
	"github.com/nacos-group/nacos-sdk-go/v2/clients/config_client"
	"github.com/nacos-group/nacos-sdk-go/v2/common/constant"
	"github.com/nacos-group/nacos-sdk-go/v2/vo"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ConfigClient 封装 Nacos 配置中心，用于拉取和监听配置内容。
type ConfigClient struct {
	client    config_client.IConfigClient
	groupName string
}

// NewConfigClient 创建配置客户端。
func NewConfigClient(serverConfigs []constant.ServerConfig, clientConfig *constant.ClientConfig, groupName string) (*ConfigClient, error) {
	if groupName == "" {
		groupName = defaultGroup
	}
	client, err := clients.NewConfigClient(vo.NacosClientParam{
		ClientConfig:  clientConfig,
		ServerConfigs: serverConfigs,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create nacos config client")
	}
	return &ConfigClient{client: client, groupName: groupName}, nil
}

// Get 读取 dataID 的当前内容。
func (c *ConfigClient) Get(dataID string) (string, error) {
	content, err := c.client.GetConfig(vo.ConfigParam{DataId: dataID, Group: c.groupName})
	if err != nil {
		return "", errors.Wrapf(err, "failed to get nacos config %s", dataID)
	}
	return content, nil
}

// Listen 在 dataID 变更时回调 onChange，回调在 SDK 的 goroutine 中执行。
func (c *ConfigClient) Listen(dataID string, onChange func(content string)) error {
	err := c.client.ListenConfig(vo.ConfigParam{
		DataId: dataID,
		Group:  c.groupName,
		OnChange: func(namespace, group, dataId, data string) {
			log.Info().Str("data_id", dataId).Str("group", group).Msg("Nacos config changed")
			onChange(data)
		},
	})
	if err != nil {
		return errors.Wrapf(err, "failed to listen nacos config %s", dataID)
	}
	return nil
}

// Close 关闭配置客户端。
func (c *ConfigClient) Close() {
	if c.client != nil {
		c.client.CloseClient()
	}
}
