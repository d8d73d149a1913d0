package extract

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/packagewjx/appd-extractor/internal/table"
)

// 四路合并后删除的冗余列。不同配置下部分列可能不存在，删除时静默跳过。
var snapshotDropColumns = []string{
	"accountGuid", "app_id_tier", "app_id_node", "app_id_app",
	"app_name_app", "app_name_node", "agentType_node", "applicationId",
	"appAgentPresent", "bt_id", "description", "description_app",
	"entryPointTypeString", "id", "ipAddresses", "localID",
	"nodeUniqueLocalId", "numberOfNodes", "serverStartTime",
	"tierId_bt", "tierName_bt",
}

// MergeSnapshots 给每条快照附上层、节点、业务事务与应用上下文。
// 四次左外连接都以快照为左表，快照自身的列保持原名，
// 右表的重名列加后缀，因此输出行数恒等于快照行数。
func MergeSnapshots(snapshots, tiers, nodes, businessTransactions, applications *table.Table) *table.Table {
	merged := snapshots.
		LeftJoin(tiers, "applicationComponentId", "tier_id", "_tier").
		LeftJoin(nodes, "applicationComponentNodeId", "node_id", "_node").
		LeftJoin(businessTransactions, "businessTransactionId", "bt_id", "_bt").
		LeftJoin(applications, "applicationId", "app_id", "_app")

	// 先从原始epoch列生成可读时间，再删除冗余列
	merged.SetColumn("start_time", nil)
	merged.SetColumn("local_start_time", nil)
	for i := 0; i < merged.Len(); i++ {
		row := merged.Row(i)
		if millis, err := strconv.ParseInt(valueString(row["serverStartTime"]), 10, 64); err == nil {
			row["start_time"] = formatEpochMillis(millis)
		}
		if millis, err := strconv.ParseInt(valueString(row["localStartTime"]), 10, 64); err == nil {
			row["local_start_time"] = formatEpochMillis(millis)
		}
	}

	merged.DropColumns(snapshotDropColumns...)
	return merged
}

// 展开服务器属性包的列
var serverBagColumns = []string{"properties", "memory", "cpus"}

// 合并节点与服务器后转换为报表表头的列名
var nodeServerRenames = map[string]string{
	"agentType":                           "Node - Agent Type",
	"appAgentVersion":                     "App Agent Version",
	"app_name":                            "Application Name",
	"AppDynamics|Agent|Agent version":     "Machine Agent Version",
	"AppDynamics|Agent|Build Number":      "Machine Agent Build #",
	"AppDynamics|Agent|Install Directory": "Machine Agent Path",
	"AppDynamics|Machine Type":            "Machine Agent Type",
	"Bios|Version":                        "BIOS Version",
	"node_name":                           "Node Name",
	"OS|Architecture":                     "OS Arch",
	"OS|Kernel|Release":                   "OS Version",
	"OS|Kernel|Name":                      "OS Name",
	"Physical":                            "RAM MB",
	"Swap":                                "SWAP MB",
	"Processor|Logical Core Count":        "CPU Logical Cores",
	"Processor|Physical Core Count":       "CPU Physical Cores",
	"tierName":                            "Tier Name",
	"Total|CPU|Logical Processor Count":   "CPU Total Logical Cores",
	"type_servers":                        "Server Type",
	"type":                                "Tier Type",
	"volumes":                             "Volumes",
	"vCPU":                                "CPU vCPU",
}

// 合并后体积大且没有报表价值的列
var nodeServerDropColumns = []string{
	"agentConfig", "AppDynamics|Agent|JVM Info", "AppDynamics|Agent|Agent Pid",
	"AppDynamics|Agent|Machine Info", "controllerConfig", "ipAddresses",
	"machineAgentVersion", "nodeUniqueLocalId",
}

// MergeNodesServers 按清理后的主机名把服务器清单挂到节点上。
// 这是尽力而为的字符串匹配，匹配不上时服务器各列为nil，节点行绝不丢失。
// 合并后把嵌套的属性包展平成列，并转换为报表表头。
func MergeNodesServers(nodes, servers *table.Table) *table.Table {
	merged := nodes.LeftJoin(servers, "machineName-cleaned", "name", "_servers")

	flattenServerBags(merged)

	// Physical与Swap是{sizeMb: n}形式的内存属性，只保留大小
	for _, column := range []string{"Physical", "Swap"} {
		if !merged.HasColumn(column) {
			continue
		}
		for i := 0; i < merged.Len(); i++ {
			if m, ok := merged.Value(i, column).(map[string]interface{}); ok {
				if size, exists := m["sizeMb"]; exists {
					merged.Set(i, column, size)
				}
			}
		}
	}

	merged.Rename(nodeServerRenames)
	merged.DropColumns(nodeServerDropColumns...)
	return merged
}

// flattenServerBags 展开properties、memory、cpus三个嵌套属性包。
// 标量子键提升为顶层列；Disk|前缀的子键结构因机器而异，
// 不适合展开成列，整组序列化为一个Disk字符串列。
func flattenServerBags(t *table.Table) {
	for _, column := range serverBagColumns {
		if !t.HasColumn(column) {
			continue
		}
		for i := 0; i < t.Len(); i++ {
			bag, ok := t.Value(i, column).(map[string]interface{})
			if !ok {
				continue
			}

			diskKeys := make([]string, 0)
			for key := range bag {
				if strings.HasPrefix(key, "Disk|") {
					diskKeys = append(diskKeys, key)
				}
			}
			if len(diskKeys) > 0 {
				sort.Strings(diskKeys)
				parts := make([]string, 0, len(diskKeys))
				for _, key := range diskKeys {
					parts = append(parts, fmt.Sprintf("%s: %v", key, bag[key]))
				}
				t.Set(i, "Disk", strings.Join(parts, ", "))
			}

			for key, value := range bag {
				if strings.HasPrefix(key, "Disk|") {
					continue
				}
				t.Set(i, key, value)
			}
		}
		t.DropColumns(column)
	}
}
