package generation

import (
	"fmt"
	"strings"

	"md-fashion-studio/modules/common/model"
)

// Role - 참조 이미지 역할 태그
type Role string

const (
	RolePerson    Role = "PERSON"
	RoleUpper     Role = "UPPER GARMENT"
	RoleLower     Role = "LOWER GARMENT"
	RoleAccessory Role = "ACCESSORY"
)

var roleInstructions = map[Role]string{
	RolePerson:    "This person's face, hair, body shape, skin tone and pose - keep EXACTLY this identity",
	RoleUpper:     "Blouse / top. The person MUST wear this exact piece on the upper body (same color, print, fabric, cut)",
	RoleLower:     "Pants / skirt. The person MUST wear this exact piece on the lower body (same color, fabric, length, fit)",
	RoleAccessory: "Accessory (bag, jewelry, hat, glasses, shoes). The person MUST wear or carry this exact item",
}

var categoryFocus = map[model.Category]string{
	model.CategoryFullLook:    "Compose the COMPLETE LOOK: replace every garment shown in the references; keep all other clothing coherent with the outfit.",
	model.CategoryShirts:      "Replace ONLY the upper-body garment. Pants, skirt, shoes and accessories already worn by the person stay unchanged.",
	model.CategoryPants:       "Replace ONLY the lower-body garment. The top, shoes and accessories already worn by the person stay unchanged.",
	model.CategoryAccessories: "Add ONLY the accessory. Every garment already worn by the person stays unchanged.",
}

// buildTryOnPrompt - 역할 태그가 붙은 참조 이미지 순서대로 시착 지시문 생성
func buildTryOnPrompt(roles []Role, category model.Category) string {
	var sb strings.Builder

	sb.WriteString("[VIRTUAL TRY-ON - FASHION EDITORIAL]\n")
	sb.WriteString("You are a world-class fashion retoucher. Dress the referenced person in the referenced items.\n")
	sb.WriteString("The PERSON is the HERO - identity and natural body proportions are SACRED and CANNOT be distorted.\n\n")

	sb.WriteString("[REFERENCE IMAGES]\n")
	for i, role := range roles {
		fmt.Fprintf(&sb, "Reference Image %d (%s): %s\n", i+1, role, roleInstructions[role])
	}

	fmt.Fprintf(&sb, "\n[CATEGORY: %s]\n%s\n", category.Label(), categoryFocus[category])

	sb.WriteString("\n[REQUIREMENTS]\n" +
		"✓ ONE photorealistic photograph of the SAME person wearing the items\n" +
		"✓ Garments drape, fold and fit naturally on the body with realistic shadows\n" +
		"✓ Keep the original pose, framing and background of the person image\n" +
		"✓ Reproduce textures, prints and logos of the items faithfully\n\n" +
		"[ABSOLUTELY FORBIDDEN]\n" +
		"❌ DO NOT change the face, hairstyle, skin tone or body shape\n" +
		"❌ DO NOT add other people, split screens, collages or text\n" +
		"❌ DO NOT invent garments that are not in the references")

	return sb.String()
}

// buildBackgroundPrompt - 장면 설명 기반 배경 교체 지시문 생성
func buildBackgroundPrompt(scene string) string {
	return "[BACKGROUND REPLACEMENT - ON LOCATION]\n" +
		"Place the person from the reference image into this scene: " + scene + "\n\n" +
		"[ABSOLUTE PRIORITY: SUBJECT INTEGRITY]\n" +
		"⚠️ Keep the person EXACTLY as they are - face, body, pose, outfit and accessories untouched\n" +
		"⚠️ DO NOT distort, stretch or crop the person to fit the frame\n\n" +
		"[ENVIRONMENTAL INTEGRATION]\n" +
		"✓ Lighting direction and color temperature of the scene wrap around the subject\n" +
		"✓ Realistic ground contact with natural shadows\n" +
		"✓ Depth of field keeps the subject sharp while the environment adds atmosphere\n" +
		"✓ ONE continuous photograph - no seams, borders or split layouts"
}
