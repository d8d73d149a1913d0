package extract

import (
	"strings"

	"github.com/packagewjx/appd-extractor/internal/table"
)

// 参与许可证估算的agent类型，输出顺序与此一致
var licenseAgentTypes = []string{
	"APP_AGENT", "DOT_NET_APP_AGENT", "NODEJS_APP_AGENT", "PYTHON_APP_AGENT",
	"PHP_APP_AGENT", "GOLANG_SDK", "WMB_AGENT", "MACHINE_AGENT",
	"DOT_NET_MACHINE_AGENT", "NATIVE_WEB_SERVER", "NATIVE_SDK",
}

// 按主机数计数的agent家族
var hostCountedAgents = map[string]struct{}{
	"DOT_NET_APP_AGENT": {}, "PYTHON_APP_AGENT": {}, "WMB_AGENT": {},
	"NATIVE_SDK": {}, "MACHINE_AGENT": {}, "DOT_NET_MACHINE_AGENT": {},
	"NATIVE_WEB_SERVER": {},
}

// 按节点名计数的agent家族
var nodeCountedAgents = map[string]struct{}{
	"APP_AGENT": {}, "PHP_APP_AGENT": {},
}

var agentFriendlyNames = map[string]string{
	"APP_AGENT":             "Java Agent",
	"DOT_NET_APP_AGENT":     ".NET Agent",
	"NODEJS_APP_AGENT":      "NodeJS Agent",
	"PYTHON_APP_AGENT":      "Python Agent",
	"PHP_APP_AGENT":         "PHP Agent",
	"GOLANG_SDK":            "Go Agent",
	"WMB_AGENT":             "IIB Agent",
	"MACHINE_AGENT":         "Machine Agent",
	"DOT_NET_MACHINE_AGENT": ".NET Machine Agent",
	"NATIVE_WEB_SERVER":     "Apache Agent",
}

// NATIVE_SDK的HTTP变种在版本串中带这个标记，对应SAP ABAP agent，
// 其余的是C++原生SDK
const httpSDKMarker = "with HTTP SDK"

// 报表中的许可证列名
const (
	colAgentType        = "Agent Type"
	colContainerNodes   = "Container Nodes"
	colPhysicalNodes    = "Physical Nodes"
	colPhysicalLicenses = "Physical Licenses (Mixed)"
	colMicroservices    = "Microservices Licenses (Mixed)"
	colStandardLicenses = "Standard Licenses"
	colLicensesRequired = "Licenses Required"
)

// ceilDiv 是块向上取整：整除加余数进位。不用通用的四舍五入，
// 那会把不足半块的余数舍掉。
func ceilDiv(n, block int) int {
	result := n / block
	if n%block > 0 {
		result++
	}
	return result
}

func distinct(rows []table.Row, column string) int {
	set := make(map[string]struct{})
	for _, row := range rows {
		if value := valueString(row[column]); value != "" {
			set[value] = struct{}{}
		}
	}
	return len(set)
}

func filterRows(rows []table.Row, column, value string) []table.Row {
	result := make([]table.Row, 0)
	for _, row := range rows {
		if valueString(row[column]) == value {
			result = append(result, row)
		}
	}
	return result
}

// CalculateLicenses 根据合并后的节点/服务器表估算各agent类型的许可证用量。
// 计数单位因agent家族而异：主机数、节点名数，或带块取整的组合。
// 所有取整都是向上取整，结果只会偏保守不会偏少。
func CalculateLicenses(merged *table.Table) *table.Table {
	byAgentType := make(map[string][]table.Row)
	for i := 0; i < merged.Len(); i++ {
		row := merged.Row(i)
		agentType := valueString(row["Node - Agent Type"])
		byAgentType[agentType] = append(byAgentType[agentType], row)
	}

	result := table.New()

	for _, agentType := range licenseAgentTypes {
		rows := byAgentType[agentType]

		if agentType == "NATIVE_SDK" {
			// HTTP SDK变种按主机1:1计，C++变种按主机三块取整
			sapRows := make([]table.Row, 0)
			cppRows := make([]table.Row, 0)
			for _, row := range rows {
				if strings.Contains(valueString(row["App Agent Version"]), httpSDKMarker) {
					sapRows = append(sapRows, row)
				} else {
					cppRows = append(cppRows, row)
				}
			}
			result.Append(table.Row{
				colAgentType:        "SAP ABAP Agent",
				colLicensesRequired: distinct(sapRows, "hostId"),
			})
			result.Append(table.Row{
				colAgentType:        "C++ Agent",
				colLicensesRequired: ceilDiv(distinct(cppRows, "hostId"), 3),
			})
			continue
		}

		containerRows := filterRows(rows, "Server Type", "CONTAINER")
		physicalRows := filterRows(rows, "Server Type", "PHYSICAL")

		var containerLicenses, physicalLicenses int
		if _, ok := hostCountedAgents[agentType]; ok {
			containerLicenses = distinct(containerRows, "hostId")
			physicalLicenses = distinct(physicalRows, "hostId")
		} else if _, ok := nodeCountedAgents[agentType]; ok {
			containerLicenses = distinct(containerRows, "Node Name")
			physicalLicenses = distinct(physicalRows, "Node Name")
		} else if agentType == "NODEJS_APP_AGENT" {
			// 每台主机的节点数按10块向上取整，再跨主机求和
			hosts := make(map[string][]table.Row)
			for _, row := range rows {
				hostID := valueString(row["hostId"])
				hosts[hostID] = append(hosts[hostID], row)
			}
			for _, hostRows := range hosts {
				containerLicenses += ceilDiv(distinct(filterRows(hostRows, "Server Type", "CONTAINER"), "Node Name"), 10)
				physicalLicenses += ceilDiv(distinct(filterRows(hostRows, "Server Type", "PHYSICAL"), "Node Name"), 10)
			}
		} else if agentType == "GOLANG_SDK" {
			// 三块取整整体应用一次，不按主机拆分
			containerLicenses = ceilDiv(distinct(containerRows, "Node Name"), 3)
			physicalLicenses = ceilDiv(distinct(physicalRows, "Node Name"), 3)
		}

		result.Append(table.Row{
			colAgentType:        friendlyName(agentType),
			colContainerNodes:   len(containerRows),
			colPhysicalNodes:    len(physicalRows),
			colPhysicalLicenses: physicalLicenses,
			colMicroservices:    ceilDiv(containerLicenses, 5),
			colStandardLicenses: physicalLicenses,
		})
	}

	return result
}

func friendlyName(agentType string) string {
	if name, ok := agentFriendlyNames[agentType]; ok {
		return name
	}
	return agentType
}
