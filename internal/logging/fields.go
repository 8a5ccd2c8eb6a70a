package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// BucketFields 提供 domain/key/操作结果字段，供桶操作日志复用。
func BucketFields(action, domain, key string, outcome string) logrus.Fields {
	return logrus.Fields{
		"action":  action,
		"domain":  domain,
		"key":     key,
		"outcome": outcome,
	}
}
