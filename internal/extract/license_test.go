package extract

import (
	"fmt"
	"testing"

	"github.com/packagewjx/appd-extractor/internal/table"
	"github.com/stretchr/testify/assert"
)

func licenseRow(agentType, serverType, hostID, nodeName, version string) table.Row {
	return table.Row{
		"Node - Agent Type": agentType,
		"Server Type":       serverType,
		"hostId":            hostID,
		"Node Name":         nodeName,
		"App Agent Version": version,
	}
}

func findLicenseRow(t *testing.T, result *table.Table, agentType string) table.Row {
	for i := 0; i < result.Len(); i++ {
		if result.Value(i, "Agent Type") == agentType {
			return result.Row(i)
		}
	}
	assert.FailNow(t, "license row not found", agentType)
	return nil
}

// 空输入也输出全部agent类型的行，NATIVE_SDK拆成SAP ABAP与C++两行
func TestCalculateLicensesEmitsAllAgentTypes(t *testing.T) {
	result := CalculateLicenses(table.New())
	assert.Equal(t, len(licenseAgentTypes)+1, result.Len())

	row := findLicenseRow(t, result, "Java Agent")
	assert.Equal(t, 0, row["Physical Nodes"])
	assert.Equal(t, 0, row["Standard Licenses"])

	row = findLicenseRow(t, result, "SAP ABAP Agent")
	assert.Equal(t, 0, row["Licenses Required"])
	row = findLicenseRow(t, result, "C++ Agent")
	assert.Equal(t, 0, row["Licenses Required"])
}

func TestCalculateLicensesJavaCountsNodeNames(t *testing.T) {
	merged := table.New()
	// 4个物理节点，其中两行是同一个节点名的重复
	merged.Append(licenseRow("APP_AGENT", "PHYSICAL", "host1", "node-1", "4.5.0"))
	merged.Append(licenseRow("APP_AGENT", "PHYSICAL", "host1", "node-1", "4.5.0"))
	merged.Append(licenseRow("APP_AGENT", "PHYSICAL", "host1", "node-2", "4.5.0"))
	merged.Append(licenseRow("APP_AGENT", "PHYSICAL", "host2", "node-3", "4.5.0"))

	row := findLicenseRow(t, CalculateLicenses(merged), "Java Agent")
	assert.Equal(t, 4, row["Physical Nodes"])
	assert.Equal(t, 3, row["Physical Licenses (Mixed)"])
	assert.Equal(t, 3, row["Standard Licenses"])
}

func TestCalculateLicensesMachineAgentCountsHosts(t *testing.T) {
	merged := table.New()
	// 同一台主机上两个machine agent节点只算一个许可证
	merged.Append(licenseRow("MACHINE_AGENT", "PHYSICAL", "host1", "ma-1", "23.1"))
	merged.Append(licenseRow("MACHINE_AGENT", "PHYSICAL", "host1", "ma-2", "23.1"))
	merged.Append(licenseRow("MACHINE_AGENT", "PHYSICAL", "host2", "ma-3", "23.1"))

	row := findLicenseRow(t, CalculateLicenses(merged), "Machine Agent")
	assert.Equal(t, 2, row["Standard Licenses"])
}

func TestCalculateLicensesNodeJSBlocksPerHost(t *testing.T) {
	merged := table.New()
	// host1上23个节点：ceil(23/10) = 3
	for i := 0; i < 23; i++ {
		merged.Append(licenseRow("NODEJS_APP_AGENT", "PHYSICAL", "host1",
			fmt.Sprintf("njs-%d", i), "20.8"))
	}
	row := findLicenseRow(t, CalculateLicenses(merged), "NodeJS Agent")
	assert.Equal(t, 3, row["Standard Licenses"])

	// 加上host2上5个节点：3 + ceil(5/10) = 4，不是ceil(28/10) = 3
	for i := 0; i < 5; i++ {
		merged.Append(licenseRow("NODEJS_APP_AGENT", "PHYSICAL", "host2",
			fmt.Sprintf("njs2-%d", i), "20.8"))
	}
	row = findLicenseRow(t, CalculateLicenses(merged), "NodeJS Agent")
	assert.Equal(t, 4, row["Standard Licenses"])
	assert.Equal(t, 28, row["Physical Nodes"])
}

func TestCalculateLicensesGoAgentBlocksWholePartition(t *testing.T) {
	merged := table.New()
	// 7个节点分布在7台主机上：按整体取整ceil(7/3) = 3，不按主机拆分
	for i := 0; i < 7; i++ {
		merged.Append(licenseRow("GOLANG_SDK", "PHYSICAL",
			fmt.Sprintf("host%d", i), fmt.Sprintf("go-%d", i), "1.0"))
	}
	row := findLicenseRow(t, CalculateLicenses(merged), "Go Agent")
	assert.Equal(t, 3, row["Standard Licenses"])
}

func TestCalculateLicensesNativeSDKSplit(t *testing.T) {
	merged := table.New()
	// 10台主机，4台的版本串带HTTP SDK标记
	for i := 0; i < 10; i++ {
		version := "21.2.0 Native SDK"
		if i < 4 {
			version = "21.2.0 with HTTP SDK"
		}
		merged.Append(licenseRow("NATIVE_SDK", "PHYSICAL",
			fmt.Sprintf("host%d", i), fmt.Sprintf("sdk-%d", i), version))
	}

	result := CalculateLicenses(merged)
	// SAP ABAP按主机1:1，C++按主机三块取整
	assert.Equal(t, 4, findLicenseRow(t, result, "SAP ABAP Agent")["Licenses Required"])
	assert.Equal(t, 2, findLicenseRow(t, result, "C++ Agent")["Licenses Required"])
}

func TestCalculateLicensesContainerNodes(t *testing.T) {
	merged := table.New()
	// 6个容器节点：节点计数6，微服务许可证ceil(6/5) = 2
	for i := 0; i < 6; i++ {
		merged.Append(licenseRow("APP_AGENT", "CONTAINER", fmt.Sprintf("pod%d", i),
			fmt.Sprintf("node-%d", i), "4.5.0"))
	}
	row := findLicenseRow(t, CalculateLicenses(merged), "Java Agent")
	assert.Equal(t, 6, row["Container Nodes"])
	assert.Equal(t, 2, row["Microservices Licenses (Mixed)"])
	assert.Equal(t, 0, row["Physical Nodes"])
	assert.Equal(t, 0, row["Standard Licenses"])
}

func TestCeilDiv(t *testing.T) {
	assert.Equal(t, 0, ceilDiv(0, 3))
	assert.Equal(t, 1, ceilDiv(1, 3))
	assert.Equal(t, 1, ceilDiv(3, 3))
	assert.Equal(t, 2, ceilDiv(4, 3))
	// 不足半块也进位，不做四舍五入
	assert.Equal(t, 3, ceilDiv(21, 10))
}
