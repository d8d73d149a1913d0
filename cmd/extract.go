/*
Copyright © 2020 NAME HERE <EMAIL ADDRESS>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/packagewjx/appd-extractor/internal/appd"
	"github.com/packagewjx/appd-extractor/internal/extract"
	"github.com/packagewjx/appd-extractor/internal/report"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flags
const (
	FlagAccount    = "account"
	FlagAPIClient  = "api-client"
	FlagAPISecret  = "api-secret"
	FlagBaseURL    = "base-url"
	FlagVerifySSL  = "verify-ssl"
	FlagApps       = "apps"
	FlagOutputDir  = "output-dir"
	FlagOutputFile = "output-file"

	FlagRetrieveAPM         = "apm"
	FlagRetrieveServers     = "servers"
	FlagAPMAvailability     = "apm-availability"
	FlagMachineAvailability = "machine-availability"
	FlagAPMDuration         = "apm-duration"
	FlagMachineDuration     = "machine-duration"

	FlagSnapshots        = "snapshots"
	FlagSnapshotDuration = "snapshot-duration"
	FlagFirstInChain     = "first-in-chain"
	FlagNeedExitCalls    = "need-exit-calls"
	FlagNeedProps        = "need-props"

	FlagHealthRuleViolations = "health-rule-violations"
	FlagGeneralEvents        = "general-events"
	FlagCustomEvents         = "custom-events"
	FlagEventDuration        = "event-duration"
	FlagEventTypes           = "event-types"
	FlagEventSeverities      = "event-severities"
	FlagCustomSeverities     = "custom-event-severities"

	FlagLicense = "license"
)

var (
	account    string
	apiClient  string
	apiSecret  string
	baseURL    string
	verifySSL  bool
	appIDs     []string
	outputDir  string
	outputFile string

	retrieveAPM         bool
	retrieveServers     bool
	apmAvailability     bool
	machineAvailability bool
	apmDuration         int
	machineDuration     int

	pullSnapshots    bool
	snapshotDuration int
	firstInChain     bool
	needExitCalls    bool
	needProps        bool

	healthRuleViolations bool
	generalEvents        bool
	customEvents         bool
	eventDuration        int
	eventTypes           []string
	eventSeverities      []string
	customSeverities     []string

	enableLicense bool
)

// extractCmd represents the extract command
var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "执行一次数据提取并输出xlsx报表",
	Long: "按配置从控制器拉取APM清单、服务器清单、快照与事件，合并后估算许可证用量，\n" +
		"写出带格式的xlsx报表。凭证可以用flag指定，也可以放在配置文件或\n" +
		"APPD_ACCOUNT、APPD_API_CLIENT、APPD_API_SECRET环境变量中。",
	PreRunE: func(cmd *cobra.Command, args []string) error {
		if account == "" {
			account = viper.GetString("account")
		}
		if apiClient == "" {
			apiClient = viper.GetString("api_client")
		}
		if apiSecret == "" {
			apiSecret = viper.GetString("api_secret")
		}
		if baseURL == "" {
			baseURL = viper.GetString("base_url")
		}
		if account == "" || apiClient == "" || apiSecret == "" {
			return fmt.Errorf("必须提供账户名、API客户端与密钥")
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runExtract()
	},
}

func runExtract() error {
	logger := log.New(os.Stdout, "extract: ", log.LstdFlags|log.Lshortfile|log.Lmsgprefix)

	credentials := &appd.Credentials{
		AccountName: account,
		APIClient:   apiClient,
		APISecret:   apiSecret,
		BaseURL:     baseURL,
	}
	authenticator, err := appd.NewAuthenticator(credentials, verifySSL)
	if err != nil {
		return err
	}

	// 初次认证失败是唯一的致命错误，没有有效会话就不尝试生成报表
	if err := authenticator.Authenticate(); err != nil {
		return errors.Wrap(err, "登录控制器失败")
	}

	client := appd.NewClient(authenticator)

	selectedIDs := appIDs
	if len(selectedIDs) == 1 && strings.EqualFold(selectedIDs[0], "ALL") {
		selectedIDs = nil
	}

	options := &extract.Options{
		ApplicationIDs:               selectedIDs,
		RetrieveAPM:                  retrieveAPM,
		RetrieveServers:              retrieveServers,
		CalcAPMAvailability:          apmAvailability,
		CalcMachineAvailability:      machineAvailability,
		APMMetricDurationMins:        apmDuration,
		MachineMetricDurationMins:    machineDuration,
		PullSnapshots:                pullSnapshots,
		SnapshotDurationMins:         snapshotDuration,
		FirstInChain:                 firstInChain,
		NeedExitCalls:                needExitCalls,
		NeedProps:                    needProps,
		RetrieveHealthRuleViolations: healthRuleViolations,
		RetrieveGeneralEvents:        generalEvents,
		RetrieveCustomEvents:         customEvents,
		EventDurationMins:            eventDuration,
		EventTypes:                   eventTypes,
		EventSeverities:              eventSeverities,
		CustomEventSeverities:        customSeverities,
		EnableLicenseProcessing:      enableLicense,
	}

	extractor, err := extract.NewExtractor(client, options)
	if err != nil {
		return err
	}

	dataset := extractor.ProcessAll()

	// 快照合并需要全部四张上下文表都有数据
	snapshots := dataset[extract.KeySnapshots]
	if !snapshots.Empty() && !dataset[extract.KeyTiers].Empty() &&
		!dataset[extract.KeyNodes].Empty() && !dataset[extract.KeyBusinessTransactions].Empty() &&
		!dataset[extract.KeyApplications].Empty() {
		logger.Println("正在合并快照数据")
		dataset[extract.KeySnapshots] = extract.MergeSnapshots(snapshots,
			dataset[extract.KeyTiers], dataset[extract.KeyNodes],
			dataset[extract.KeyBusinessTransactions], dataset[extract.KeyApplications])
	}

	if retrieveAPM && retrieveServers &&
		!dataset[extract.KeyNodes].Empty() && !dataset[extract.KeyServers].Empty() {
		logger.Println("正在合并节点与服务器数据")
		merged := extract.MergeNodesServers(dataset[extract.KeyNodes], dataset[extract.KeyServers])
		dataset[extract.KeyNodes] = merged

		if enableLicense {
			logger.Println("正在估算许可证用量")
			dataset[extract.KeyLicenseUsage] = extract.CalculateLicenses(merged)
		}
	} else if enableLicense {
		logger.Println("跳过许可证估算：需要同时有节点与服务器数据")
	}

	path := outputPath(dataset)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(err, "创建输出目录失败")
	}

	logger.Printf("正在写出报表：%s", path)
	writer := report.NewWriter()
	if err := writer.WriteWorkbook(path, reportSheets(dataset)); err != nil {
		// 写失败不丢弃内存数据，只把本次运行标记为失败
		return errors.Wrap(err, "写出报表失败")
	}

	logger.Println("提取完成")
	return nil
}

// outputPath 生成输出文件路径。只提取了一个应用时文件名附带应用名。
func outputPath(dataset extract.Dataset) string {
	if outputFile != "" {
		return filepath.Join(outputDir, outputFile)
	}
	date := time.Now().Format("01-02-2006")
	applications := dataset[extract.KeyApplications]
	if applications.Len() == 1 {
		appName := strings.ReplaceAll(fmt.Sprintf("%v", applications.Value(0, "app_name")), " ", "_")
		return filepath.Join(outputDir, fmt.Sprintf("%s-%s-analysis_%s.xlsx", account, appName, date))
	}
	return filepath.Join(outputDir, fmt.Sprintf("%s_analysis_%s.xlsx", account, date))
}

// reportSheets 按固定顺序组装各页，空表由writer跳过。
func reportSheets(dataset extract.Dataset) []report.Sheet {
	return []report.Sheet{
		{Name: "Info", Data: dataset[extract.KeyInformation]},
		{Name: "License Usage", Data: dataset[extract.KeyLicenseUsage]},
		{Name: "Applications", Data: dataset[extract.KeyApplications]},
		{Name: "BTs", Data: dataset[extract.KeyBusinessTransactions]},
		{Name: "Tiers", Data: dataset[extract.KeyTiers]},
		{Name: "Nodes", Data: dataset[extract.KeyNodes]},
		{Name: "Backends", Data: dataset[extract.KeyBackends]},
		{Name: "Health Rules", Data: dataset[extract.KeyHealthRules]},
		{Name: "Snapshots", Data: dataset[extract.KeySnapshots]},
		{Name: "Servers", Data: dataset[extract.KeyServers]},
		{Name: "Health Rule Violations", Data: dataset[extract.KeyHealthRuleViolations]},
		{Name: "General Events", Data: dataset[extract.KeyGeneralEvents]},
		{Name: "Custom Events", Data: dataset[extract.KeyCustomEvents]},
	}
}

func init() {
	rootCmd.AddCommand(extractCmd)

	extractCmd.Flags().StringVar(&account, FlagAccount, "", "AppDynamics账户名")
	extractCmd.Flags().StringVar(&apiClient, FlagAPIClient, "", "API客户端名")
	extractCmd.Flags().StringVar(&apiSecret, FlagAPISecret, "", "API客户端密钥")
	extractCmd.Flags().StringVar(&baseURL, FlagBaseURL, "",
		"控制器地址。为空时按https://{account}.saas.appdynamics.com推导，on-prem用户需要指定")
	extractCmd.Flags().BoolVar(&verifySSL, FlagVerifySSL, true,
		"校验SSL证书。仅on-prem自签名证书时才应关闭")
	extractCmd.Flags().StringSliceVarP(&appIDs, FlagApps, "a", nil,
		"要提取的应用ID列表，为空或ALL表示全部应用")
	extractCmd.Flags().StringVar(&outputDir, FlagOutputDir, "output", "报表输出目录")
	extractCmd.Flags().StringVar(&outputFile, FlagOutputFile, "",
		"报表文件名。为空时按{account}_analysis_{date}.xlsx生成")

	extractCmd.Flags().BoolVar(&retrieveAPM, FlagRetrieveAPM, true, "拉取APM数据（应用、层、节点等）")
	extractCmd.Flags().BoolVar(&retrieveServers, FlagRetrieveServers, true, "拉取服务器清单")
	extractCmd.Flags().BoolVar(&apmAvailability, FlagAPMAvailability, true, "分析层与节点的可用性")
	extractCmd.Flags().BoolVar(&machineAvailability, FlagMachineAvailability, true, "分析服务器可用性")
	extractCmd.Flags().IntVar(&apmDuration, FlagAPMDuration, extract.DefaultAPMMetricDurationMins,
		"APM可用性回看时间（分钟）")
	extractCmd.Flags().IntVar(&machineDuration, FlagMachineDuration, extract.DefaultMachineMetricDurationMins,
		"服务器可用性回看时间（分钟）")

	extractCmd.Flags().BoolVar(&pullSnapshots, FlagSnapshots, false, "拉取事务快照")
	extractCmd.Flags().IntVar(&snapshotDuration, FlagSnapshotDuration, extract.DefaultSnapshotDurationMins,
		"快照回看时间（分钟），最大20159")
	extractCmd.Flags().BoolVar(&firstInChain, FlagFirstInChain, true, "只取调用链首个快照")
	extractCmd.Flags().BoolVar(&needExitCalls, FlagNeedExitCalls, false, "快照附带出口调用数据")
	extractCmd.Flags().BoolVar(&needProps, FlagNeedProps, false, "快照附带数据采集器数据")

	extractCmd.Flags().BoolVar(&healthRuleViolations, FlagHealthRuleViolations, false, "拉取健康规则违反")
	extractCmd.Flags().BoolVar(&generalEvents, FlagGeneralEvents, false, "拉取一般事件")
	extractCmd.Flags().BoolVar(&customEvents, FlagCustomEvents, false, "拉取自定义事件")
	extractCmd.Flags().IntVar(&eventDuration, FlagEventDuration, extract.DefaultEventDurationMins,
		"事件回看时间（分钟）")
	extractCmd.Flags().StringSliceVar(&eventTypes, FlagEventTypes, nil,
		"要拉取的事件类型，为空表示全部已知类型")
	extractCmd.Flags().StringSliceVar(&eventSeverities, FlagEventSeverities, []string{"WARN", "ERROR"},
		"一般事件的严重级别")
	extractCmd.Flags().StringSliceVar(&customSeverities, FlagCustomSeverities, []string{"INFO", "WARN", "ERROR"},
		"自定义事件的严重级别")

	extractCmd.Flags().BoolVar(&enableLicense, FlagLicense, false,
		"估算许可证用量，需要同时开启APM与服务器数据")
}
