package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bunyod-abdulloh/vanillewebapp/internal/config"
	"github.com/bunyod-abdulloh/vanillewebapp/models"
)

const defaultBaseURL = "https://api.telegram.org"

// Notifier delivers order reports to the admin Telegram group through
// the Bot API. Delivery is best-effort: failures are logged, never
// returned, so an order submission can't be failed by a notification.
type Notifier struct {
	token   string
	group   string
	baseURL string
	client  *http.Client
}

func New(cfg config.Config) *Notifier {
	return NewWithBaseURL(cfg, defaultBaseURL)
}

// NewWithBaseURL keeps the API host swappable for tests.
func NewWithBaseURL(cfg config.Config, baseURL string) *Notifier {
	return &Notifier{
		token:   cfg.BotToken,
		group:   cfg.AdminGroup,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

// OrderCreated reports a freshly submitted order to the admin group:
// a location pin first when the client registered coordinates, then
// the formatted report. The order must come with Items.Product, Client
// and Shop resolved.
func (n *Notifier) OrderCreated(order *models.Order) {
	if n.token == "" || n.group == "" {
		log.Printf("telegram notification skipped: bot credentials not configured")
		return
	}
	if !order.Client.Latitude.IsZero() && !order.Client.Longitude.IsZero() {
		if err := n.sendLocation(order.Client.Latitude, order.Client.Longitude); err != nil {
			log.Printf("failed to send order #%d location: %v", order.ID, err)
		}
	}
	if err := n.sendMessage(BuildReport(order)); err != nil {
		log.Printf("failed to send order #%d report: %v", order.ID, err)
	}
}

// BuildReport renders the admin-group order report in the fixed HTML
// format the group expects.
func BuildReport(order *models.Order) string {
	const divider = "━━━━━━━━━━━━━━━━━━━━\n"
	var b strings.Builder
	fmt.Fprintf(&b, "🛍 <b>YANGI BUYURTMA #%d</b>\n", order.ID)
	b.WriteString(divider)
	fmt.Fprintf(&b, "👤 <b>Mijoz:</b> %s\n", order.Client.FullName)
	fmt.Fprintf(&b, "📞 <b>Tel:</b> %s\n", order.Client.Phone)
	fmt.Fprintf(&b, "🏪 <b>Restoran:</b> %s\n", order.Shop.Name)
	fmt.Fprintf(&b, "📍 <b>Filial:</b> %s\n", order.Client.FilialName)
	fmt.Fprintf(&b, "💬 <b>Izoh:</b> %s\n", order.Comment)
	b.WriteString(divider)
	for _, item := range order.Items {
		fmt.Fprintf(&b, "🔹 <b>%s</b>\n", item.Product.Name)
		fmt.Fprintf(&b, "   └ %d x %s = %s so'm\n", item.Quantity, FormatAmount(item.Price), FormatAmount(item.Subtotal))
	}
	b.WriteString(divider)
	fmt.Fprintf(&b, "💰 <b>JAMI: %s so'm</b>\n", FormatAmount(order.TotalPrice))
	fmt.Fprintf(&b, "⏰ <b>Vaqt:</b> %s", order.CreatedAt.Local().Format("15:04 | 02.01.2006"))
	return b.String()
}

// FormatAmount renders a money value with comma thousands grouping and
// no decimal places.
func FormatAmount(d decimal.Decimal) string {
	s := d.Round(0).StringFixed(0)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	for i := len(s) - 3; i > 0; i -= 3 {
		s = s[:i] + "," + s[i:]
	}
	if neg {
		s = "-" + s
	}
	return s
}

func (n *Notifier) sendMessage(text string) error {
	return n.post("sendMessage", map[string]interface{}{
		"chat_id":    n.group,
		"text":       text,
		"parse_mode": "HTML",
	})
}

func (n *Notifier) sendLocation(lat, lon decimal.Decimal) error {
	return n.post("sendLocation", map[string]interface{}{
		"chat_id":   n.group,
		"latitude":  lat.InexactFloat64(),
		"longitude": lon.InexactFloat64(),
	})
}

func (n *Notifier) post(method string, payload map[string]interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/bot%s/%s", n.baseURL, n.token, method)
	resp, err := n.client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram %s: unexpected status %d", method, resp.StatusCode)
	}
	return nil
}
