package appd

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
)

// Client 封装控制器各资源接口。所有方法都返回Response，
// 传输错误与HTTP错误码都折叠为error状态，不会抛出。
type Client interface {
	GetApplications(applicationID string) Response
	GetTiers(applicationID string) Response
	GetAppNodes(applicationID string) Response
	GetTierNodes(applicationID, tierID string) Response
	GetAppBackends(applicationID string) Response
	GetBusinessTransactions(applicationID string) Response
	GetHealthRules(applicationID string) Response
	GetSnapshots(applicationID string, durationMins int, firstInChain, needExitCalls, needProps bool) Response
	GetServers() Response
	GetHealthRuleViolations(applicationID string, startTimeMs, endTimeMs int64) Response
	GetEvents(applicationID string, eventTypes, severities []string, startTimeMs, endTimeMs int64) Response
	GetAPMAvailability(objectType, appName, tierName, agentType, nodeName string, durationMins int) Response
	GetSIMAvailability(hierarchy []string, hostID, serverType string, durationMins int) Response

	BaseURL() string
}

type httpClient struct {
	authenticator *Authenticator
	logger        *log.Logger
}

var _ Client = &httpClient{}

func NewClient(authenticator *Authenticator) Client {
	return &httpClient{
		authenticator: authenticator,
		logger:        log.New(os.Stdout, "appd client: ", log.LstdFlags|log.Lshortfile|log.Lmsgprefix),
	}
}

func (c *httpClient) BaseURL() string {
	return c.authenticator.Credentials.BaseURL
}

// request 发送一个带认证的请求。非2xx、连接失败等都归为error状态，
// 由调用方决定是否继续，绝不中断整个提取流程。
func (c *httpClient) request(method, url string) Response {
	if err := c.authenticator.EnsureAuthenticated(); err != nil {
		c.logger.Printf("刷新认证失败：%v", err)
		return Response{Status: StatusError}
	}

	request, err := http.NewRequest(method, url, nil)
	if err != nil {
		c.logger.Printf("构造请求失败：%v", err)
		return Response{Status: StatusError}
	}

	response, err := c.authenticator.Do(request)
	if err != nil {
		c.logger.Printf("请求失败：%v", err)
		return Response{Status: StatusError}
	}
	defer func() {
		_ = response.Body.Close()
	}()

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		c.logger.Printf("HTTP错误：%d - %s", response.StatusCode, httpErrorExplanation(response.StatusCode))
		return Response{Status: StatusError}
	}

	body, err := io.ReadAll(response.Body)
	if err != nil {
		c.logger.Printf("读取响应体失败：%v", err)
		return Response{Status: StatusError}
	}

	return Response{Body: body, Status: StatusValid}
}

func httpErrorExplanation(code int) string {
	explanations := map[int]string{
		http.StatusBadRequest:          "Bad Request - The request was invalid.",
		http.StatusUnauthorized:        "Unauthorized - Authentication failed.",
		http.StatusForbidden:           "Forbidden - You don't have permission to access this resource.",
		http.StatusNotFound:            "Not Found - The resource could not be found.",
		http.StatusInternalServerError: "Internal Server Error - Something went wrong on the server.",
	}
	if explanation, ok := explanations[code]; ok {
		return explanation
	}
	return "Unknown HTTP Error"
}

func (c *httpClient) GetApplications(applicationID string) Response {
	url := fmt.Sprintf("%s/controller/rest/applications?output=json", c.BaseURL())
	if applicationID != "" {
		url = fmt.Sprintf("%s/controller/rest/applications/%s?output=json", c.BaseURL(), applicationID)
	}
	return c.request(http.MethodGet, url)
}

func (c *httpClient) GetTiers(applicationID string) Response {
	url := fmt.Sprintf("%s/controller/rest/applications/%s/tiers?output=json", c.BaseURL(), applicationID)
	return c.request(http.MethodGet, url)
}

func (c *httpClient) GetAppNodes(applicationID string) Response {
	url := fmt.Sprintf("%s/controller/rest/applications/%s/nodes?output=json", c.BaseURL(), applicationID)
	return c.request(http.MethodGet, url)
}

func (c *httpClient) GetTierNodes(applicationID, tierID string) Response {
	url := fmt.Sprintf("%s/controller/rest/applications/%s/tiers/%s/nodes?output=json",
		c.BaseURL(), applicationID, tierID)
	return c.request(http.MethodGet, url)
}

func (c *httpClient) GetAppBackends(applicationID string) Response {
	url := fmt.Sprintf("%s/controller/rest/applications/%s/backends?output=json", c.BaseURL(), applicationID)
	return c.request(http.MethodGet, url)
}

// GetBusinessTransactions 返回XML格式的业务事务列表。
func (c *httpClient) GetBusinessTransactions(applicationID string) Response {
	url := fmt.Sprintf("%s/controller/rest/applications/%s/business-transactions", c.BaseURL(), applicationID)
	return c.request(http.MethodGet, url)
}

func (c *httpClient) GetHealthRules(applicationID string) Response {
	url := fmt.Sprintf("%s/controller/alerting/rest/v1/applications/%s/health-rules", c.BaseURL(), applicationID)
	return c.request(http.MethodGet, url)
}

func (c *httpClient) GetSnapshots(applicationID string, durationMins int, firstInChain, needExitCalls, needProps bool) Response {
	url := fmt.Sprintf("%s/controller/rest/applications/%s/request-snapshots"+
		"?time-range-type=BEFORE_NOW&duration-in-mins=%d"+
		"&first-in-chain=%t&need-exit-calls=%t&need-props=%t&maximum-results=1000000",
		c.BaseURL(), applicationID, durationMins, firstInChain, needExitCalls, needProps)
	return c.request(http.MethodGet, url)
}

func (c *httpClient) GetServers() Response {
	url := fmt.Sprintf("%s/controller/sim/v2/user/machines", c.BaseURL())
	return c.request(http.MethodGet, url)
}

// GetHealthRuleViolations 返回指定时间段内的健康规则违反，XML格式，单次最多600条。
func (c *httpClient) GetHealthRuleViolations(applicationID string, startTimeMs, endTimeMs int64) Response {
	url := fmt.Sprintf("%s/controller/rest/applications/%s/problems/healthrule-violations"+
		"?time-range-type=BETWEEN_TIMES&start-time=%d&end-time=%d",
		c.BaseURL(), applicationID, startTimeMs, endTimeMs)
	return c.request(http.MethodGet, url)
}

// GetEvents 返回指定时间段内的事件，XML格式，单次最多600条。
func (c *httpClient) GetEvents(applicationID string, eventTypes, severities []string, startTimeMs, endTimeMs int64) Response {
	url := fmt.Sprintf("%s/controller/rest/applications/%s/events"+
		"?time-range-type=BETWEEN_TIMES&start-time=%d&end-time=%d&event-types=%s&severities=%s",
		c.BaseURL(), applicationID, startTimeMs, endTimeMs,
		encodePathSegment(strings.Join(eventTypes, ",")),
		encodePathSegment(strings.Join(severities, ",")))
	return c.request(http.MethodGet, url)
}

// GetAPMAvailability 查询层或节点级别的agent可用性指标。
// 机器agent与应用agent的指标路径不同。
func (c *httpClient) GetAPMAvailability(objectType, appName, tierName, agentType, nodeName string, durationMins int) Response {
	tier := encodePathSegment(tierName)
	app := encodePathSegment(appName)
	node := encodePathSegment(nodeName)

	agentKind := "App"
	if agentType == AgentTypeMachine {
		agentKind = "Machine"
	}

	var metricPath string
	if objectType == "node" {
		metricPath = fmt.Sprintf("Application%%20Infrastructure%%20Performance%%7C%s%%7CIndividual%%20Nodes%%7C%s%%7CAgent%%7C%s%%7CAvailability",
			tier, node, agentKind)
	} else {
		metricPath = fmt.Sprintf("Application%%20Infrastructure%%20Performance%%7C%s%%7CAgent%%7C%s%%7CAvailability",
			tier, agentKind)
	}

	url := fmt.Sprintf("%s/controller/rest/applications/%s/metric-data"+
		"?metric-path=%s&time-range-type=BEFORE_NOW&duration-in-mins=%d&rollup=false&output=json",
		c.BaseURL(), app, metricPath, durationMins)
	return c.request(http.MethodGet, url)
}

// GetSIMAvailability 查询服务器可用性。物理机查Machine Availability，
// 容器没有该指标，用CPU %Busy代替。
func (c *httpClient) GetSIMAvailability(hierarchy []string, hostID, serverType string, durationMins int) Response {
	encoded := make([]string, len(hierarchy))
	for i, segment := range hierarchy {
		encoded[i] = encodePathSegment(segment)
	}
	// 层级分隔符是转义过的"\|"
	hierarchyPath := strings.Join(encoded, "%5C%7C")

	var metricPath string
	if serverType == ServerTypePhysical {
		metricPath = fmt.Sprintf("Application%%20Infrastructure%%20Performance%%7CRoot%%5C%%7C%s"+
			"%%7CIndividual%%20Nodes%%7C%s%%7CHardware%%20Resources%%7CMachine%%7CAvailability",
			hierarchyPath, encodePathSegment(hostID))
	} else {
		metricPath = fmt.Sprintf("Application%%20Infrastructure%%20Performance%%7CRoot%%5C%%7C%s"+
			"%%7CIndividual%%20Nodes%%7C%s%%7CHardware%%20Resources%%7CCPU%%7C%%25Busy",
			hierarchyPath, encodePathSegment(hostID))
	}

	url := fmt.Sprintf("%s/controller/rest/applications/Server%%20%%26%%20Infrastructure%%20Monitoring/metric-data"+
		"?metric-path=%s&time-range-type=BEFORE_NOW&duration-in-mins=%d&output=json",
		c.BaseURL(), metricPath, durationMins)
	return c.request(http.MethodGet, url)
}

// encodePathSegment 把应用、层、节点名转换为URL安全形式。
// 与标准的query编码不同，空格必须编码为%20而不是加号。
func encodePathSegment(text string) string {
	const unreserved = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_.~/"
	var builder strings.Builder
	for i := 0; i < len(text); i++ {
		b := text[i]
		if strings.IndexByte(unreserved, b) >= 0 {
			builder.WriteByte(b)
		} else {
			builder.WriteString(fmt.Sprintf("%%%02X", b))
		}
	}
	return builder.String()
}
