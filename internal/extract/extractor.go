package extract

import (
	"fmt"
	"log"
	"os"
	"regexp"
	"strconv"
	"time"

	"github.com/packagewjx/appd-extractor/internal/appd"
	"github.com/packagewjx/appd-extractor/internal/table"
)

const (
	DefaultAPMMetricDurationMins     = 60
	DefaultMachineMetricDurationMins = 60
	DefaultSnapshotDurationMins      = 60
	DefaultEventDurationMins         = 60
)

// Options 是一次提取运行的全部配置。
type Options struct {
	ApplicationIDs []string // 为空表示全部应用

	RetrieveAPM     bool
	RetrieveServers bool

	CalcAPMAvailability       bool
	CalcMachineAvailability   bool
	APMMetricDurationMins     int
	MachineMetricDurationMins int

	PullSnapshots        bool
	SnapshotDurationMins int
	FirstInChain         bool
	NeedExitCalls        bool
	NeedProps            bool

	RetrieveHealthRuleViolations bool
	RetrieveGeneralEvents        bool
	RetrieveCustomEvents         bool
	EventDurationMins            int
	EventTypes                   []string
	EventSeverities              []string
	CustomEventSeverities        []string
	EventRequestDelay            time.Duration

	EnableLicenseProcessing bool
}

func (o *Options) Complete() error {
	if !o.RetrieveAPM && !o.RetrieveServers {
		return fmt.Errorf("APM数据与服务器数据至少要选择一项")
	}
	if o.APMMetricDurationMins <= 0 {
		o.APMMetricDurationMins = DefaultAPMMetricDurationMins
	}
	if o.MachineMetricDurationMins <= 0 {
		o.MachineMetricDurationMins = DefaultMachineMetricDurationMins
	}
	if o.SnapshotDurationMins <= 0 {
		o.SnapshotDurationMins = DefaultSnapshotDurationMins
	}
	if o.SnapshotDurationMins > 20159 {
		return fmt.Errorf("快照时间范围不能超过20159分钟，现在为%d", o.SnapshotDurationMins)
	}
	if o.EventDurationMins <= 0 {
		o.EventDurationMins = DefaultEventDurationMins
	}
	if o.EventRequestDelay <= 0 {
		o.EventRequestDelay = DefaultEventRequestDelay
	}
	if len(o.EventSeverities) == 0 {
		o.EventSeverities = []string{"WARN", "ERROR"}
	}
	if len(o.CustomEventSeverities) == 0 {
		o.CustomEventSeverities = []string{"INFO", "WARN", "ERROR"}
	}
	if o.EnableLicenseProcessing && !(o.RetrieveAPM && o.RetrieveServers) {
		return fmt.Errorf("许可证估算需要同时拉取APM数据与服务器数据")
	}
	return nil
}

// Dataset 是一次运行累积出来的全部表格，键为数据类别。
type Dataset map[string]*table.Table

// Dataset的键
const (
	KeyInformation          = "information"
	KeyLicenseUsage         = "license_usage"
	KeyApplications         = "applications"
	KeyBusinessTransactions = "business_transactions"
	KeyTiers                = "tiers"
	KeyNodes                = "nodes"
	KeyBackends             = "backends"
	KeyHealthRules          = "health_rules"
	KeySnapshots            = "snapshots"
	KeyServers              = "servers"
	KeyHealthRuleViolations = "health_rule_violations"
	KeyGeneralEvents        = "general_events"
	KeyCustomEvents         = "custom_events"
)

// availabilityFunc 查询一个对象的可用性指标。按行注入，测试时可以换成
// 返回固定序列的实现，避免真实网络调用。
type apmAvailabilityFunc func(objectType, appName, tierName, agentType, nodeName string, durationMins int) appd.Response
type simAvailabilityFunc func(hierarchy []string, hostID, serverType string, durationMins int) appd.Response

// Extractor 按应用逐个拉取各资源并累积成Dataset。
// 严格串行执行，同一时刻只有一个未完成的HTTP请求。
type Extractor struct {
	client  appd.Client
	options *Options
	logger  *log.Logger

	apmAvailability apmAvailabilityFunc
	simAvailability simAvailabilityFunc
	now             func() time.Time
}

func NewExtractor(client appd.Client, options *Options) (*Extractor, error) {
	if err := options.Complete(); err != nil {
		return nil, err
	}
	return &Extractor{
		client:          client,
		options:         options,
		logger:          log.New(os.Stdout, "extractor: ", log.LstdFlags|log.Lshortfile|log.Lmsgprefix),
		apmAvailability: client.GetAPMAvailability,
		simAvailability: client.GetSIMAvailability,
		now:             time.Now,
	}, nil
}

func (e *Extractor) WithAPMAvailabilityFunc(fn apmAvailabilityFunc) *Extractor {
	e.apmAvailability = fn
	return e
}

func (e *Extractor) WithSIMAvailabilityFunc(fn simAvailabilityFunc) *Extractor {
	e.simAvailability = fn
	return e
}

func (e *Extractor) WithClock(now func() time.Time) *Extractor {
	e.now = now
	return e
}

// rowsFromJSON 把Classify后的JSON数据转换为行集合。
// 单个对象的响应（按ID查询应用）也转换为单行表。
func rowsFromJSON(data interface{}) []table.Row {
	switch v := data.(type) {
	case []interface{}:
		rows := make([]table.Row, 0, len(v))
		for _, item := range v {
			if m, ok := item.(map[string]interface{}); ok {
				rows = append(rows, m)
			}
		}
		return rows
	case map[string]interface{}:
		return []table.Row{v}
	default:
		return nil
	}
}

// ExtractApplications 拉取应用列表。指定了单个应用ID时按ID查询。
func (e *Extractor) ExtractApplications() *table.Table {
	singleID := ""
	if len(e.options.ApplicationIDs) == 1 {
		singleID = e.options.ApplicationIDs[0]
	}

	data, status := appd.Classify(e.client.GetApplications(singleID))
	if status != appd.StatusValid {
		e.logger.Printf("未获取到应用数据，状态为%s", status)
		return table.New()
	}

	t := table.FromMaps(rowsFromJSON(data))
	t.Rename(map[string]string{"id": "app_id", "name": "app_name"})

	if len(e.options.ApplicationIDs) > 1 {
		wanted := make(map[string]struct{}, len(e.options.ApplicationIDs))
		for _, id := range e.options.ApplicationIDs {
			wanted[id] = struct{}{}
		}
		filtered := table.New()
		for i := 0; i < t.Len(); i++ {
			if _, ok := wanted[valueString(t.Value(i, "app_id"))]; ok {
				filtered.Append(t.Row(i))
			}
		}
		return filtered
	}
	return t
}

func (e *Extractor) ExtractBusinessTransactions(appID string) *table.Table {
	response := e.client.GetBusinessTransactions(appID)
	if response.Status != appd.StatusValid {
		return table.New()
	}
	rows, status := ParseXMLRows(response.Body, "business-transaction")
	if status != appd.StatusValid {
		return table.New()
	}
	t := table.FromMaps(rows)
	t.SetColumn("app_id", appID)
	t.Rename(map[string]string{"id": "bt_id", "name": "bt_name"})
	return t
}

func (e *Extractor) ExtractTiers(appID, appName string) *table.Table {
	data, status := appd.Classify(e.client.GetTiers(appID))
	if status != appd.StatusValid {
		return table.New()
	}
	t := table.FromMaps(rowsFromJSON(data))
	t.SetColumn("app_id", appID)
	t.SetColumn("app_name", appName)
	t.Rename(map[string]string{"id": "tier_id", "name": "tier_name"})
	return t
}

// machineAgentSuffix 是机器上报主机名带的agent后缀，清理后才能与服务器清单匹配
var machineAgentSuffix = regexp.MustCompile(`-java-MA$`)

func (e *Extractor) ExtractNodes(appID, appName string) *table.Table {
	data, status := appd.Classify(e.client.GetAppNodes(appID))
	if status != appd.StatusValid {
		return table.New()
	}
	t := table.FromMaps(rowsFromJSON(data))
	t.SetColumn("app_id", appID)
	t.SetColumn("app_name", appName)
	t.Rename(map[string]string{"id": "node_id", "name": "node_name"})

	t.SetColumn("machineName-cleaned", nil)
	for i := 0; i < t.Len(); i++ {
		row := t.Row(i)
		row["machineName-cleaned"] = machineAgentSuffix.ReplaceAllString(valueString(row["machineName"]), "")
	}
	return t
}

func (e *Extractor) ExtractBackends(appID, appName string) *table.Table {
	data, status := appd.Classify(e.client.GetAppBackends(appID))
	if status != appd.StatusValid {
		return table.New()
	}
	t := table.FromMaps(rowsFromJSON(data))
	t.SetColumn("app_id", appID)
	t.SetColumn("app_name", appName)
	t.Rename(map[string]string{"id": "backend_id", "name": "backend_name"})
	return t
}

func (e *Extractor) ExtractHealthRules(appID, appName string) *table.Table {
	data, status := appd.Classify(e.client.GetHealthRules(appID))
	if status != appd.StatusValid {
		return table.New()
	}
	t := table.FromMaps(rowsFromJSON(data))
	t.SetColumn("app_id", appID)
	t.SetColumn("app_name", appName)
	return t
}

func (e *Extractor) ExtractSnapshots(appID string) *table.Table {
	response := e.client.GetSnapshots(appID, e.options.SnapshotDurationMins,
		e.options.FirstInChain, e.options.NeedExitCalls, e.options.NeedProps)
	if response.Status != appd.StatusValid {
		return table.New()
	}
	rows, status := ParseXMLRows(response.Body, "request-segment-data")
	if status != appd.StatusValid {
		return table.New()
	}
	t := table.FromMaps(rows)
	t.SetColumn("app_id", appID)

	t.SetColumn("snapshot_link", nil)
	for i := 0; i < t.Len(); i++ {
		row := t.Row(i)
		row["snapshot_link"] = snapshotLink(row, e.client.BaseURL())
	}
	return t
}

// snapshotLink 构造控制器的快照深度链接，时间范围为开始时间前后各30分钟。
func snapshotLink(row table.Row, baseURL string) string {
	startTime, _ := strconv.ParseInt(valueString(row["serverStartTime"]), 10, 64)
	return fmt.Sprintf("%s/controller/#/location=APP_SNAPSHOT_VIEWER"+
		"&requestGUID=%s&application=%s&businessTransaction=%s"+
		"&rsdTime=Custom_Time_Range.BETWEEN_TIMES.%d.%d.60"+
		"&tab=overview&dashboardMode=force",
		baseURL, valueString(row["requestGUID"]), valueString(row["applicationId"]),
		valueString(row["businessTransactionId"]),
		startTime+1800000, startTime-1800000)
}

func (e *Extractor) ExtractServers() *table.Table {
	data, status := appd.Classify(e.client.GetServers())
	if status != appd.StatusValid {
		e.logger.Printf("未获取到服务器数据，状态为%s", status)
		return table.New()
	}
	return table.FromMaps(rowsFromJSON(data))
}

func (e *Extractor) ExtractHealthRuleViolations(appID, appName string) *table.Table {
	fetch := func(startTimeMs, endTimeMs int64) ([]table.Row, appd.Status) {
		response := e.client.GetHealthRuleViolations(appID, startTimeMs, endTimeMs)
		if response.Status != appd.StatusValid {
			return nil, response.Status
		}
		return ParseXMLRows(response.Body, "policy-violation")
	}
	t := FetchWindowedEvents(fetch, e.options.EventDurationMins, e.options.EventRequestDelay, e.now(), e.logger)
	t.SetColumn("app_id", appID)
	t.SetColumn("app_name", appName)
	return t
}

func (e *Extractor) extractEvents(appID, appName string, eventTypes, severities []string) *table.Table {
	fetch := func(startTimeMs, endTimeMs int64) ([]table.Row, appd.Status) {
		response := e.client.GetEvents(appID, eventTypes, severities, startTimeMs, endTimeMs)
		if response.Status != appd.StatusValid {
			return nil, response.Status
		}
		return ParseXMLRows(response.Body, "event")
	}
	t := FetchWindowedEvents(fetch, e.options.EventDurationMins, e.options.EventRequestDelay, e.now(), e.logger)
	t.SetColumn("app_id", appID)
	t.SetColumn("app_name", appName)
	return t
}

func (e *Extractor) ExtractGeneralEvents(appID, appName string) *table.Table {
	eventTypes := e.options.EventTypes
	if len(eventTypes) == 0 {
		eventTypes = AllEventTypes()
	}
	return e.extractEvents(appID, appName, eventTypes, e.options.EventSeverities)
}

func (e *Extractor) ExtractCustomEvents(appID, appName string) *table.Table {
	return e.extractEvents(appID, appName, []string{EventTypeCustom}, e.options.CustomEventSeverities)
}

// 报表中时间列的显示格式
const reportTimeFormat = "01/02/2006 03:04:05 PM"

func formatEpochMillis(millis int64) string {
	return time.UnixMilli(millis).Format(reportTimeFormat)
}

// addTierAvailability 逐行查询层可用性，填入最近观测时间与上报节点数。
// 每行都是一次阻塞的网络调用，严格串行。
func (e *Extractor) addTierAvailability(tiers *table.Table) {
	tiers.SetColumn("Last Seen Tier", nil)
	tiers.SetColumn("Last Seen Tier - Node Count", nil)
	for i := 0; i < tiers.Len(); i++ {
		row := tiers.Row(i)
		response := e.apmAvailability("tier", valueString(row["app_name"]), valueString(row["tier_name"]),
			valueString(row["agentType"]), "", e.options.APMMetricDurationMins)
		if response.Status != appd.StatusValid {
			continue
		}
		series, status := appd.ParseMetricSeries(response.Body)
		lastSeen, value := appd.DetermineAvailability(series, status)
		if lastSeen != nil {
			row["Last Seen Tier"] = formatEpochMillis(*lastSeen)
		}
		if value != nil {
			row["Last Seen Tier - Node Count"] = int(*value)
		}
	}
}

func (e *Extractor) addNodeAvailability(nodes *table.Table) {
	nodes.SetColumn("Last Seen Node", nil)
	for i := 0; i < nodes.Len(); i++ {
		row := nodes.Row(i)
		response := e.apmAvailability("node", valueString(row["app_name"]), valueString(row["tierName"]),
			valueString(row["agentType"]), valueString(row["node_name"]), e.options.APMMetricDurationMins)
		if response.Status != appd.StatusValid {
			continue
		}
		series, status := appd.ParseMetricSeries(response.Body)
		lastSeen, _ := appd.DetermineAvailability(series, status)
		if lastSeen != nil {
			row["Last Seen Node"] = formatEpochMillis(*lastSeen)
		}
	}
}

func (e *Extractor) addServerAvailability(servers *table.Table) {
	servers.SetColumn("Last Seen Server", nil)
	for i := 0; i < servers.Len(); i++ {
		row := servers.Row(i)
		response := e.simAvailability(hierarchySegments(row["hierarchy"]), valueString(row["hostId"]),
			valueString(row["type"]), e.options.MachineMetricDurationMins)
		if response.Status != appd.StatusValid {
			continue
		}
		series, status := appd.ParseMetricSeries(response.Body)
		lastSeen, _ := appd.DetermineAvailability(series, status)
		if lastSeen != nil {
			row["Last Seen Server"] = formatEpochMillis(*lastSeen)
		}
	}
}

func hierarchySegments(value interface{}) []string {
	list, ok := value.([]interface{})
	if !ok {
		return nil
	}
	segments := make([]string, 0, len(list))
	for _, item := range list {
		segments = append(segments, valueString(item))
	}
	return segments
}

// buildInformation 生成Info页的运行参数表。
func (e *Extractor) buildInformation() *table.Table {
	apmDuration := 0
	if e.options.CalcAPMAvailability {
		apmDuration = e.options.APMMetricDurationMins
	}
	machineDuration := 0
	if e.options.CalcMachineAvailability {
		machineDuration = e.options.MachineMetricDurationMins
	}
	snapshotDuration := 0
	if e.options.PullSnapshots {
		snapshotDuration = e.options.SnapshotDurationMins
	}

	settings := []struct {
		name  string
		value interface{}
	}{
		{"RUN_DATE", e.now().Format("2006-01-02 15:04:05")},
		{"BASE_URL", e.client.BaseURL()},
		{"Selected Apps", fmt.Sprintf("%v", e.options.ApplicationIDs)},
		{"APM availability (mins)", apmDuration},
		{"Machine availability (mins)", machineDuration},
		{"Retrieve snapshots", e.options.PullSnapshots},
		{"Snapshot range (mins)", snapshotDuration},
		{"Event range (mins)", e.options.EventDurationMins},
	}

	t := table.New()
	for _, setting := range settings {
		t.Append(table.Row{"setting": setting.name, "value": setting.value})
	}
	return t
}

// ProcessAll 是整个提取流程的入口：按应用循环拉取各资源累积成表，
// 服务器清单在应用循环之外拉取一次。
func (e *Extractor) ProcessAll() Dataset {
	dataset := Dataset{
		KeyApplications:         table.New(),
		KeyBusinessTransactions: table.New(),
		KeyTiers:                table.New(),
		KeyNodes:                table.New(),
		KeyBackends:             table.New(),
		KeyHealthRules:          table.New(),
		KeySnapshots:            table.New(),
		KeyServers:              table.New(),
		KeyHealthRuleViolations: table.New(),
		KeyGeneralEvents:        table.New(),
		KeyCustomEvents:         table.New(),
		KeyLicenseUsage:         table.New(),
	}
	dataset[KeyInformation] = e.buildInformation()

	if e.options.RetrieveAPM {
		applications := e.ExtractApplications()
		dataset[KeyApplications] = applications

		for i := 0; i < applications.Len(); i++ {
			appID := valueString(applications.Value(i, "app_id"))
			appName := valueString(applications.Value(i, "app_name"))
			e.logger.Printf("正在处理应用%s（%s）", appName, appID)

			bts := e.ExtractBusinessTransactions(appID)
			e.logResult("业务事务", appName, bts)
			dataset[KeyBusinessTransactions].Concat(bts)

			tiers := e.ExtractTiers(appID, appName)
			if e.options.CalcAPMAvailability && !tiers.Empty() {
				e.addTierAvailability(tiers)
			}
			e.logResult("层", appName, tiers)
			dataset[KeyTiers].Concat(tiers)

			nodes := e.ExtractNodes(appID, appName)
			if e.options.CalcAPMAvailability && !nodes.Empty() {
				e.addNodeAvailability(nodes)
			}
			e.logResult("节点", appName, nodes)
			dataset[KeyNodes].Concat(nodes)

			backends := e.ExtractBackends(appID, appName)
			e.logResult("后端", appName, backends)
			dataset[KeyBackends].Concat(backends)

			healthRules := e.ExtractHealthRules(appID, appName)
			e.logResult("健康规则", appName, healthRules)
			dataset[KeyHealthRules].Concat(healthRules)

			if e.options.PullSnapshots {
				snapshots := e.ExtractSnapshots(appID)
				e.logResult("快照", appName, snapshots)
				dataset[KeySnapshots].Concat(snapshots)
			}

			if e.options.RetrieveHealthRuleViolations {
				violations := e.ExtractHealthRuleViolations(appID, appName)
				e.logResult("健康规则违反", appName, violations)
				dataset[KeyHealthRuleViolations].Concat(violations)
			}

			if e.options.RetrieveGeneralEvents {
				events := e.ExtractGeneralEvents(appID, appName)
				e.logResult("事件", appName, events)
				dataset[KeyGeneralEvents].Concat(events)
			}

			if e.options.RetrieveCustomEvents {
				events := e.ExtractCustomEvents(appID, appName)
				e.logResult("自定义事件", appName, events)
				dataset[KeyCustomEvents].Concat(events)
			}
		}
	}

	if e.options.RetrieveServers {
		servers := e.ExtractServers()
		if e.options.CalcMachineAvailability && !servers.Empty() {
			e.addServerAvailability(servers)
		}
		e.logger.Printf("获取了%d条服务器数据", servers.Len())
		dataset[KeyServers] = servers
	}

	return dataset
}

func (e *Extractor) logResult(resource, appName string, t *table.Table) {
	if t.Empty() {
		e.logger.Printf("应用%s没有%s数据", appName, resource)
		return
	}
	e.logger.Printf("应用%s获取了%d条%s数据", appName, t.Len(), resource)
}

func valueString(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		if val == float64(int64(val)) {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}
