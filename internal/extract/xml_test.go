package extract

import (
	"testing"

	"github.com/packagewjx/appd-extractor/internal/appd"
	"github.com/stretchr/testify/assert"
)

func TestParseXMLRows(t *testing.T) {
	body := []byte(`<business-transactions>
		<business-transaction id="42">
			<name>/checkout</name>
			<tierName>Web</tierName>
			<tierId>10</tierId>
		</business-transaction>
		<business-transaction id="43">
			<name>/cart</name>
			<tierName>Web</tierName>
			<tierId>10</tierId>
		</business-transaction>
	</business-transactions>`)

	rows, status := ParseXMLRows(body, "business-transaction")
	assert.Equal(t, appd.StatusValid, status)
	if !assert.Len(t, rows, 2) {
		assert.FailNow(t, "unexpected row count")
	}
	// 属性和子元素都成为列
	assert.Equal(t, "42", rows[0]["id"])
	assert.Equal(t, "/checkout", rows[0]["name"])
	assert.Equal(t, "10", rows[0]["tierId"])
	assert.Equal(t, "/cart", rows[1]["name"])
}

func TestParseXMLRowsNestedElement(t *testing.T) {
	body := []byte(`<request-segment-datas>
		<request-segment-data>
			<requestGUID>abc-123</requestGUID>
			<properties>
				<name>Disk|sda|sizeMb</name>
				<value>512000</value>
			</properties>
		</request-segment-data>
	</request-segment-datas>`)

	rows, status := ParseXMLRows(body, "request-segment-data")
	assert.Equal(t, appd.StatusValid, status)
	assert.Equal(t, "abc-123", rows[0]["requestGUID"])
	// 嵌套结构压平为描述串
	assert.Equal(t, "name: Disk|sda|sizeMb, value: 512000", rows[0]["properties"])
}

func TestParseXMLRowsEmptyAndMalformed(t *testing.T) {
	_, status := ParseXMLRows(nil, "event")
	assert.Equal(t, appd.StatusEmpty, status)

	_, status = ParseXMLRows([]byte("   \n"), "event")
	assert.Equal(t, appd.StatusEmpty, status)

	// 合法XML但没有目标元素
	_, status = ParseXMLRows([]byte("<events></events>"), "event")
	assert.Equal(t, appd.StatusEmpty, status)

	_, status = ParseXMLRows([]byte("<events><event></events>"), "event")
	assert.Equal(t, appd.StatusError, status)
}
