package config

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"

	"statscrape/internal/shared/types"
)

// LoadIni 加载 statscrape.ini 行为配置文件，未出现的键保留 cfg 中的默认值。
func LoadIni(cfg *types.Config, fileName string) error {
	iniFile, err := ini.Load(fileName)
	if err != nil {
		return err
	}
	if err := iniFile.MapTo(cfg); err != nil {
		return err
	}
	ApplyEnv(cfg)
	return nil
}

// ApplyEnv overrides selected keys from the environment.
func ApplyEnv(cfg *types.Config) {
	overrideFromEnvString(&cfg.LogConf.Level, "STATSCRAPE_LOG_LEVEL")
	overrideFromEnvString(&cfg.EgressConf.Mode, "STATSCRAPE_EGRESS_MODE")
	overrideFromEnvInt(&cfg.WebConf.Port, "STATSCRAPE_WEB_PORT")
}

// LoadRelays 加载静态 relay 列表文件：每行一个 host:port，'#' 开头为注释。
func LoadRelays(fileName string) ([]string, error) {
	if fileName == "" {
		return nil, nil
	}
	file, err := os.Open(fileName)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to read relays file: %w", err)
	}
	defer file.Close()

	var relays []string
	scanner := bufio.NewScanner(file)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if _, _, err := net.SplitHostPort(line); err != nil {
			return nil, fmt.Errorf("relays file line %d: %w", lineNum, err)
		}
		relays = append(relays, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return relays, nil
}

// LoadSources 加载 sources.json 数据文件。
func LoadSources(fileName string) ([]*types.RelaySource, error) {
	if fileName == "" {
		return []*types.RelaySource{}, nil
	}
	data, err := os.ReadFile(fileName)
	if err != nil {
		// 如果文件不存在，返回一个空列表而不是错误
		if os.IsNotExist(err) {
			return []*types.RelaySource{}, nil
		}
		return nil, fmt.Errorf("failed to read sources file: %w", err)
	}

	var sources []*types.RelaySource
	if err := json.Unmarshal(data, &sources); err != nil {
		return nil, fmt.Errorf("failed to unmarshal sources file: %w", err)
	}
	for i, s := range sources {
		if s.Name == "" || s.URL == "" || s.RowXPath == "" || s.HostXPath == "" || s.PortXPath == "" {
			return nil, fmt.Errorf("source #%d is missing name, url or xpaths", i)
		}
	}
	return sources, nil
}

func overrideFromEnvString(target *string, envName string) {
	if envValue := os.Getenv(envName); envValue != "" {
		*target = envValue
	}
}

func overrideFromEnvInt(target *int, envName string) {
	envValue := os.Getenv(envName)
	if envValue != "" {
		if intValue, err := strconv.Atoi(envValue); err == nil {
			*target = intValue
		}
	}
}
